package gateway

import (
	"context"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mcdev12/banpick/go/internal/draft/room"
	"github.com/mcdev12/banpick/go/internal/rpc"
)

// SnapshotProvider returns a room with its countdown projection.
// *room.App satisfies it directly.
type SnapshotProvider interface {
	GetRoom(ctx context.Context, id uuid.UUID) (room.View, error)
}

// RemoteSnapshotProvider reads snapshots from the API server.
type RemoteSnapshotProvider struct {
	client *room.Client
}

func NewRemoteSnapshotProvider(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *RemoteSnapshotProvider {
	return &RemoteSnapshotProvider{client: room.NewClient(httpClient, baseURL, opts...)}
}

var _ SnapshotProvider = (*RemoteSnapshotProvider)(nil)

func (p *RemoteSnapshotProvider) GetRoom(ctx context.Context, id uuid.UUID) (room.View, error) {
	resp, err := p.client.GetRoom(ctx, connect.NewRequest(&room.GetRoomRequest{RoomID: id}))
	if err != nil {
		return room.View{}, rpc.FromConnectError(err)
	}
	return *resp.Msg, nil
}
