package room

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mcdev12/banpick/go/internal/auth"
	"github.com/mcdev12/banpick/go/internal/models"
	"github.com/mcdev12/banpick/go/internal/rpc"
)

const ServiceName = "banpick.v1.RoomService"

const (
	CreateRoomProcedure  = "/" + ServiceName + "/CreateRoom"
	ClaimSeatProcedure   = "/" + ServiceName + "/ClaimSeat"
	LeaveSeatProcedure   = "/" + ServiceName + "/LeaveSeat"
	StartDraftProcedure  = "/" + ServiceName + "/StartDraft"
	ApplyActionProcedure = "/" + ServiceName + "/ApplyAction"
	AbortDraftProcedure  = "/" + ServiceName + "/AbortDraft"
	GetRoomProcedure     = "/" + ServiceName + "/GetRoom"
)

// RoomApp defines what the service layer needs from the room application
type RoomApp interface {
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error)
	ClaimSeat(ctx context.Context, req ClaimSeatRequest) error
	LeaveSeat(ctx context.Context, req LeaveSeatRequest) error
	StartDraft(ctx context.Context, req StartDraftRequest) (TurnResult, error)
	ApplyAction(ctx context.Context, req ApplyActionRequest) (TurnResult, error)
	AbortDraft(ctx context.Context, req AbortDraftRequest) error
	GetRoom(ctx context.Context, id uuid.UUID) (View, error)
}

type CreateRoomResponse struct {
	Room *models.Room `json:"room"`
}

type GetRoomRequest struct {
	RoomID uuid.UUID `json:"roomId"`
}

type Empty struct{}

// Service exposes RoomApp over Connect with JSON bodies
type Service struct {
	app RoomApp
}

// NewService creates a new room service
func NewService(app RoomApp) *Service {
	return &Service{app: app}
}

func (s *Service) CreateRoom(ctx context.Context, req *connect.Request[CreateRoomRequest]) (*connect.Response[CreateRoomResponse], error) {
	msg := *req.Msg
	msg.HostIdentity = auth.IdentityFrom(ctx)
	room, err := s.app.CreateRoom(ctx, msg)
	if err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(&CreateRoomResponse{Room: room}), nil
}

func (s *Service) ClaimSeat(ctx context.Context, req *connect.Request[ClaimSeatRequest]) (*connect.Response[Empty], error) {
	msg := *req.Msg
	msg.Identity = auth.IdentityFrom(ctx)
	if err := s.app.ClaimSeat(ctx, msg); err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) LeaveSeat(ctx context.Context, req *connect.Request[LeaveSeatRequest]) (*connect.Response[Empty], error) {
	msg := *req.Msg
	msg.Identity = auth.IdentityFrom(ctx)
	if err := s.app.LeaveSeat(ctx, msg); err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) StartDraft(ctx context.Context, req *connect.Request[StartDraftRequest]) (*connect.Response[TurnResult], error) {
	msg := *req.Msg
	msg.Identity = auth.IdentityFrom(ctx)
	res, err := s.app.StartDraft(ctx, msg)
	if err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(&res), nil
}

func (s *Service) ApplyAction(ctx context.Context, req *connect.Request[ApplyActionRequest]) (*connect.Response[TurnResult], error) {
	msg := *req.Msg
	msg.Identity = auth.IdentityFrom(ctx)
	res, err := s.app.ApplyAction(ctx, msg)
	if err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(&res), nil
}

func (s *Service) AbortDraft(ctx context.Context, req *connect.Request[AbortDraftRequest]) (*connect.Response[Empty], error) {
	msg := *req.Msg
	msg.Identity = auth.IdentityFrom(ctx)
	if err := s.app.AbortDraft(ctx, msg); err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) GetRoom(ctx context.Context, req *connect.Request[GetRoomRequest]) (*connect.Response[View], error) {
	view, err := s.app.GetRoom(ctx, req.Msg.RoomID)
	if err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(&view), nil
}

// NewHandler mounts every RoomService procedure and returns the path prefix
// to register it under.
func NewHandler(s *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = rpc.HandlerOptions(opts...)
	mux := http.NewServeMux()
	mux.Handle(CreateRoomProcedure, connect.NewUnaryHandler(CreateRoomProcedure, s.CreateRoom, opts...))
	mux.Handle(ClaimSeatProcedure, connect.NewUnaryHandler(ClaimSeatProcedure, s.ClaimSeat, opts...))
	mux.Handle(LeaveSeatProcedure, connect.NewUnaryHandler(LeaveSeatProcedure, s.LeaveSeat, opts...))
	mux.Handle(StartDraftProcedure, connect.NewUnaryHandler(StartDraftProcedure, s.StartDraft, opts...))
	mux.Handle(ApplyActionProcedure, connect.NewUnaryHandler(ApplyActionProcedure, s.ApplyAction, opts...))
	mux.Handle(AbortDraftProcedure, connect.NewUnaryHandler(AbortDraftProcedure, s.AbortDraft, opts...))
	mux.Handle(GetRoomProcedure, connect.NewUnaryHandler(GetRoomProcedure, s.GetRoom, opts...))
	return "/" + ServiceName + "/", mux
}

// Client calls RoomService over Connect.
type Client struct {
	createRoom  *connect.Client[CreateRoomRequest, CreateRoomResponse]
	claimSeat   *connect.Client[ClaimSeatRequest, Empty]
	leaveSeat   *connect.Client[LeaveSeatRequest, Empty]
	startDraft  *connect.Client[StartDraftRequest, TurnResult]
	applyAction *connect.Client[ApplyActionRequest, TurnResult]
	abortDraft  *connect.Client[AbortDraftRequest, Empty]
	getRoom     *connect.Client[GetRoomRequest, View]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = rpc.ClientOptions(opts...)
	return &Client{
		createRoom:  connect.NewClient[CreateRoomRequest, CreateRoomResponse](httpClient, baseURL+CreateRoomProcedure, opts...),
		claimSeat:   connect.NewClient[ClaimSeatRequest, Empty](httpClient, baseURL+ClaimSeatProcedure, opts...),
		leaveSeat:   connect.NewClient[LeaveSeatRequest, Empty](httpClient, baseURL+LeaveSeatProcedure, opts...),
		startDraft:  connect.NewClient[StartDraftRequest, TurnResult](httpClient, baseURL+StartDraftProcedure, opts...),
		applyAction: connect.NewClient[ApplyActionRequest, TurnResult](httpClient, baseURL+ApplyActionProcedure, opts...),
		abortDraft:  connect.NewClient[AbortDraftRequest, Empty](httpClient, baseURL+AbortDraftProcedure, opts...),
		getRoom:     connect.NewClient[GetRoomRequest, View](httpClient, baseURL+GetRoomProcedure, opts...),
	}
}

func (c *Client) CreateRoom(ctx context.Context, req *connect.Request[CreateRoomRequest]) (*connect.Response[CreateRoomResponse], error) {
	return c.createRoom.CallUnary(ctx, req)
}

func (c *Client) ClaimSeat(ctx context.Context, req *connect.Request[ClaimSeatRequest]) (*connect.Response[Empty], error) {
	return c.claimSeat.CallUnary(ctx, req)
}

func (c *Client) LeaveSeat(ctx context.Context, req *connect.Request[LeaveSeatRequest]) (*connect.Response[Empty], error) {
	return c.leaveSeat.CallUnary(ctx, req)
}

func (c *Client) StartDraft(ctx context.Context, req *connect.Request[StartDraftRequest]) (*connect.Response[TurnResult], error) {
	return c.startDraft.CallUnary(ctx, req)
}

func (c *Client) ApplyAction(ctx context.Context, req *connect.Request[ApplyActionRequest]) (*connect.Response[TurnResult], error) {
	return c.applyAction.CallUnary(ctx, req)
}

func (c *Client) AbortDraft(ctx context.Context, req *connect.Request[AbortDraftRequest]) (*connect.Response[Empty], error) {
	return c.abortDraft.CallUnary(ctx, req)
}

func (c *Client) GetRoom(ctx context.Context, req *connect.Request[GetRoomRequest]) (*connect.Response[View], error) {
	return c.getRoom.CallUnary(ctx, req)
}
