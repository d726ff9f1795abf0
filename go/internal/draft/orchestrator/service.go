package orchestrator

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mcdev12/banpick/go/internal/rpc"
)

const TimeoutServiceName = "banpick.v1.TimeoutService"

const ResolveTurnTimeoutProcedure = "/" + TimeoutServiceName + "/ResolveTurnTimeout"

type ResolveTurnTimeoutRequest struct {
	RoomID       uuid.UUID `json:"roomId"`
	TurnSequence int       `json:"turnSequence"`
}

type ResolveTurnTimeoutResponse struct {
	Outcome Outcome `json:"outcome"`
}

// Service exposes the Resolver to remote timeout workers. A turn is only
// resolved over RPC once its deadline plus grace has passed.
type Service struct {
	resolver *Resolver
	grace    time.Duration
}

func NewService(resolver *Resolver, grace time.Duration) *Service {
	if grace < 0 {
		grace = 0
	}
	return &Service{resolver: resolver, grace: grace}
}

func (s *Service) ResolveTurnTimeout(ctx context.Context, req *connect.Request[ResolveTurnTimeoutRequest]) (*connect.Response[ResolveTurnTimeoutResponse], error) {
	outcome, err := s.resolver.ResolveAfter(ctx, req.Msg.RoomID, req.Msg.TurnSequence, s.grace)
	if err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(&ResolveTurnTimeoutResponse{Outcome: outcome}), nil
}

// NewHandler returns the path prefix and handler for TimeoutService.
func NewHandler(s *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(ResolveTurnTimeoutProcedure, connect.NewUnaryHandler(
		ResolveTurnTimeoutProcedure, s.ResolveTurnTimeout, rpc.HandlerOptions(opts...)...))
	return "/" + TimeoutServiceName + "/", mux
}

// RemoteResolver resolves timeouts by calling TimeoutService on the API
// server, so the timeout worker holds no database connection.
type RemoteResolver struct {
	client *connect.Client[ResolveTurnTimeoutRequest, ResolveTurnTimeoutResponse]
}

func NewRemoteResolver(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *RemoteResolver {
	return &RemoteResolver{
		client: connect.NewClient[ResolveTurnTimeoutRequest, ResolveTurnTimeoutResponse](
			httpClient, baseURL+ResolveTurnTimeoutProcedure, rpc.ClientOptions(opts...)...),
	}
}

var _ TurnResolver = (*RemoteResolver)(nil)

func (r *RemoteResolver) ResolveTurn(ctx context.Context, roomID uuid.UUID, turnSequence int) error {
	resp, err := r.client.CallUnary(ctx, connect.NewRequest(&ResolveTurnTimeoutRequest{
		RoomID:       roomID,
		TurnSequence: turnSequence,
	}))
	if err != nil {
		return rpc.FromConnectError(err)
	}
	if resp.Msg.Outcome == OutcomeNotDue {
		return ErrNotDue
	}
	return nil
}
