package grpc_control

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"series-observer/src/analysis"
	datasource "series-observer/src/data_source"
	"series-observer/src/helpers"
	"series-observer/src/interfaces"
	"series-observer/src/logger"
	"series-observer/src/models"
	"series-observer/src/monitoring"
	"series-observer/src/session"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ControlService implements SeriesControlServer.
//
//	ListSessions  {}                                           -> {"sessions": [info...]}
//	ListSources   {}                                           -> {"sources": [name...]}
//	ReloadSource  {"name"}                                     -> {"session": info}
//	Summarize     {"session", "series"}                        -> statistics
//	Transform     {"session", "series"?, "spec": {...}, "save"} -> {"series": s} or {"collection": c}
//	DeleteSession {"session"}                                  -> {}
type ControlService struct {
	Engine    *analysis.SeriesEngine
	Store     *session.SessionStore
	Sources   *datasource.MultiSourceManager
	Exchanger interfaces.IDataExchanger
	Metrics   *monitoring.Metrics
	Logger    *logger.Logger

	server *grpc.Server
}

// NewControlService creates a new instance of ControlService. sources,
// exchanger and metrics may be nil.
func NewControlService(
	engine *analysis.SeriesEngine,
	store *session.SessionStore,
	sources *datasource.MultiSourceManager,
	exchanger interfaces.IDataExchanger,
	metrics *monitoring.Metrics,
	log *logger.Logger,
) *ControlService {
	s := &ControlService{
		Engine:    engine,
		Store:     store,
		Sources:   sources,
		Exchanger: exchanger,
		Metrics:   metrics,
		Logger:    log,
		server:    grpc.NewServer(),
	}
	RegisterSeriesControlServer(s.server, s)
	return s
}

// -----------------------------------------------------------------------------

// Start listens on addr and serves in the background.
func (s *ControlService) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return helpers.NewConfigurationError("grpc listen on %s: %v", addr, err)
	}
	s.Logger.Info("Starting gRPC control server on %s", lis.Addr())
	go func() {
		if err := s.Serve(lis); err != nil {
			s.Logger.Error("gRPC server stopped: %v", err)
		}
	}()
	return nil
}

// Serve blocks serving lis until Stop is called.
func (s *ControlService) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

func (s *ControlService) Stop() {
	s.server.GracefulStop()
}

// -----------------------------------------------------------------------------
// Conversions
// -----------------------------------------------------------------------------

func toStatus(err error) error {
	kind := helpers.ErrorKind(err)
	var code codes.Code
	switch kind {
	case "format_error", "empty_input", "validation_error":
		code = codes.InvalidArgument
	case "degenerate_range":
		code = codes.FailedPrecondition
	case "not_found":
		code = codes.NotFound
	case "network_error", "database_error":
		code = codes.Unavailable
	case "configuration_error":
		code = codes.FailedPrecondition
	default:
		code = codes.Internal
	}
	return status.Errorf(code, "%s: %v", kind, err)
}

// toStruct goes through encoding/json so the wire form matches the REST API.
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func stringField(req *structpb.Struct, key string) (string, error) {
	v := req.GetFields()[key].GetStringValue()
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return v, nil
}

func specField(req *structpb.Struct) (models.MTransformSpec, error) {
	var spec models.MTransformSpec
	raw := req.GetFields()["spec"].GetStructValue()
	if raw == nil {
		return spec, status.Error(codes.InvalidArgument, "spec is required")
	}
	data, err := json.Marshal(raw.AsMap())
	if err != nil {
		return spec, status.Errorf(codes.InvalidArgument, "spec: %v", err)
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return spec, status.Errorf(codes.InvalidArgument, "spec: %v", err)
	}
	return spec, nil
}

func (s *ControlService) observe(operation string, points int, started time.Time, err error) {
	if s.Metrics != nil {
		s.Metrics.Observe(operation, points, started, err)
	}
}

func (s *ControlService) broadcast(eventType string, info models.MSessionInfo) {
	if s.Exchanger != nil {
		s.Exchanger.Broadcast(models.MSessionEvent{Type: eventType, Session: info})
	}
}

// -----------------------------------------------------------------------------
// Methods
// -----------------------------------------------------------------------------

func (s *ControlService) ListSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	list, err := s.Store.List(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{"sessions": list})
}

// -----------------------------------------------------------------------------

func (s *ControlService) ListSources(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	names := []string{}
	if s.Sources != nil {
		for _, src := range s.Sources.GetAllSources() {
			names = append(names, src.Name())
		}
	}
	return toStruct(map[string]interface{}{"sources": names})
}

// -----------------------------------------------------------------------------

// ReloadSource fetches a configured source again into a new session.
func (s *ControlService) ReloadSource(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := stringField(req, "name")
	if err != nil {
		return nil, err
	}
	if s.Sources == nil {
		return nil, status.Error(codes.NotFound, "no sources configured")
	}
	src, err := s.Sources.GetSource(name)
	if err != nil {
		return nil, toStatus(err)
	}

	started := time.Now()
	coll, err := src.Fetch(ctx)
	s.observe("reload", 0, started, err)
	if err != nil {
		s.Logger.Warning("gRPC: reload of %s failed: %v", name, err)
		return nil, toStatus(err)
	}

	created, err := s.Store.Create(ctx, name, coll)
	if err != nil {
		return nil, toStatus(err)
	}
	s.broadcast(models.EventSessionCreated, created.MSessionInfo)
	s.Logger.Info("gRPC: reloaded %s into session %s", name, created.ID)
	return toStruct(map[string]interface{}{"session": created.MSessionInfo})
}

// -----------------------------------------------------------------------------

func (s *ControlService) lookup(ctx context.Context, req *structpb.Struct) (*models.MSession, *models.MTimeSeries, error) {
	id, err := stringField(req, "session")
	if err != nil {
		return nil, nil, err
	}
	sess, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, nil, toStatus(err)
	}
	name := req.GetFields()["series"].GetStringValue()
	if name == "" {
		return sess, nil, nil
	}
	series, ok := sess.Collection.Get(name)
	if !ok {
		return nil, nil, toStatus(helpers.NewNotFoundError("series %q not found in session %s", name, id))
	}
	return sess, series, nil
}

// -----------------------------------------------------------------------------

func (s *ControlService) Summarize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	_, series, err := s.lookup(ctx, req)
	if err != nil {
		return nil, err
	}
	if series == nil {
		return nil, status.Error(codes.InvalidArgument, "series is required")
	}
	started := time.Now()
	stats := s.Engine.Summarize(series)
	s.observe("summarize", series.Len(), started, nil)
	return toStruct(stats)
}

// -----------------------------------------------------------------------------

// Transform runs on one series when "series" is set, otherwise on the whole
// session. "save": true replaces the session contents with the result.
func (s *ControlService) Transform(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, series, err := s.lookup(ctx, req)
	if err != nil {
		return nil, err
	}
	spec, err := specField(req)
	if err != nil {
		return nil, err
	}
	save := req.GetFields()["save"].GetBoolValue()

	started := time.Now()
	if series != nil {
		out, err := s.Engine.Transform(series, spec)
		s.observe("transform_"+spec.Kind, series.Len(), started, err)
		if err != nil {
			return nil, toStatus(err)
		}
		if save {
			coll := models.NewSeriesCollection()
			for _, existing := range sess.Collection.All() {
				coll.Replace(existing)
			}
			coll.Replace(out)
			if err := s.save(ctx, sess.ID, coll); err != nil {
				return nil, err
			}
		}
		return toStruct(map[string]interface{}{"series": out})
	}

	out, err := s.Engine.TransformAll(ctx, sess.Collection, spec)
	s.observe("transform_all_"+spec.Kind, sess.Points, started, err)
	if err != nil {
		return nil, toStatus(err)
	}
	if save {
		if err := s.save(ctx, sess.ID, out); err != nil {
			return nil, err
		}
	}
	return toStruct(map[string]interface{}{"collection": out})
}

func (s *ControlService) save(ctx context.Context, id string, coll *models.MSeriesCollection) error {
	updated, err := s.Store.Update(ctx, id, coll)
	if err != nil {
		return toStatus(err)
	}
	s.broadcast(models.EventSessionUpdated, updated.MSessionInfo)
	return nil
}

// -----------------------------------------------------------------------------

func (s *ControlService) DeleteSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := stringField(req, "session")
	if err != nil {
		return nil, err
	}
	if err := s.Store.Delete(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	s.broadcast(models.EventSessionDeleted, models.MSessionInfo{ID: id})
	s.Logger.Info("gRPC: deleted session %s", id)
	return &structpb.Struct{}, nil
}
