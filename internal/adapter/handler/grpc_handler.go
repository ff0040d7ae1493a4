package handler

import (
	"context"
	"encoding/json"
	"math"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/store-inventory/internal/core/domain"
	"github.com/rl1809/store-inventory/internal/core/service"
	"github.com/rl1809/store-inventory/internal/platform/metrics"
)

const (
	InventoryServiceName  = "inventory.v1.InventoryService"
	TransferMethod        = "/" + InventoryServiceName + "/Transfer"
	ListAlertsMethod      = "/" + InventoryServiceName + "/ListAlerts"
	inventoryProtoPackage = "inventory/v1/inventory.proto"
)

// InventoryServiceServer is the gRPC surface of the transfer engine and the
// alert evaluator. Payloads are google.protobuf.Struct documents with the
// same field names as the JSON API.
type InventoryServiceServer interface {
	Transfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListAlerts(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

var InventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: InventoryServiceName,
	HandlerType: (*InventoryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Transfer", Handler: transferHandler},
		{MethodName: "ListAlerts", Handler: listAlertsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: inventoryProtoPackage,
}

func RegisterInventoryServiceServer(s grpc.ServiceRegistrar, srv InventoryServiceServer) {
	s.RegisterService(&InventoryServiceDesc, srv)
}

func transferHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServiceServer).Transfer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TransferMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServiceServer).Transfer(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listAlertsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServiceServer).ListAlerts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListAlertsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServiceServer).ListAlerts(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

type GRPCHandler struct {
	inventory *service.InventoryService
	metrics   *metrics.ServerMetrics
	logger    *zap.Logger
}

var _ InventoryServiceServer = (*GRPCHandler)(nil)

func NewGRPCHandler(inventory *service.InventoryService, m *metrics.ServerMetrics, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{inventory: inventory, metrics: m, logger: logger}
}

func (h *GRPCHandler) Transfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cmd, err := transferCommandFromStruct(req)
	if err != nil {
		h.metrics.Transfers.WithLabelValues("invalid").Inc()
		return nil, h.status(err)
	}

	movement, err := h.inventory.Transfer(ctx, cmd)
	h.metrics.Transfers.WithLabelValues(transferOutcome(err)).Inc()
	if err != nil {
		return nil, h.status(err)
	}
	return toStruct(newMovementResponse(*movement))
}

func (h *GRPCHandler) ListAlerts(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	alerts, err := h.inventory.Alerts(ctx)
	if err != nil {
		return nil, h.status(err)
	}
	return toStruct(struct {
		Alerts []AlertResponse `json:"alerts"`
	}{Alerts: newAlertListResponse(alerts)})
}

func (h *GRPCHandler) status(err error) error {
	code := grpcCode(err)
	if code == codes.Internal {
		h.logger.Error("rpc failed", zap.Error(err))
		return status.Error(code, msgInternalError)
	}
	return status.Error(code, err.Error())
}

func transferCommandFromStruct(req *structpb.Struct) (service.TransferCommand, error) {
	fields := req.GetFields()
	str := func(name string) (string, bool) {
		v, ok := fields[name].GetKind().(*structpb.Value_StringValue)
		if !ok {
			return "", false
		}
		return v.StringValue, true
	}

	productID, okProduct := str("product_id")
	source, okSource := str("source_store_id")
	target, okTarget := str("target_store_id")
	qty, okQty := fields["quantity"].GetKind().(*structpb.Value_NumberValue)
	if !okProduct || !okSource || !okTarget || !okQty {
		return service.TransferCommand{}, domain.NewValidationError(domain.MsgMissingFields)
	}
	if qty.NumberValue != math.Trunc(qty.NumberValue) || math.Abs(qty.NumberValue) > math.MaxInt32 {
		return service.TransferCommand{}, domain.NewValidationError(domain.MsgQuantityPositive)
	}

	key, _ := str("idempotency_key")
	return service.TransferCommand{
		ProductID:      productID,
		SourceStoreID:  source,
		TargetStoreID:  target,
		Quantity:       int(qty.NumberValue),
		IdempotencyKey: key,
	}, nil
}

// toStruct converts a JSON response DTO into a Struct with identical field names.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}
