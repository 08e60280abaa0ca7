package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	BookingServiceName = "slotbook.v1.BookingService"
	AdminServiceName   = "slotbook.v1.AdminService"
)

// BookingServiceServer is the public surface used by booking pages.
type BookingServiceServer interface {
	ListAvailableSlots(ctx context.Context, req *ListAvailableSlotsRequest) (*ListAvailableSlotsResponse, error)
	BookAppointment(ctx context.Context, req *BookAppointmentRequest) (*BookAppointmentResponse, error)
	ConfirmAppointment(ctx context.Context, req *TokenRequest) (*AppointmentResponse, error)
	CancelAppointment(ctx context.Context, req *TokenRequest) (*CancelAppointmentResponse, error)
}

// AdminServiceServer manages forms, appointments and settings. Every call needs an admin token.
type AdminServiceServer interface {
	CreateForm(ctx context.Context, req *FormRequest) (*FormResponse, error)
	UpdateForm(ctx context.Context, req *FormRequest) (*FormResponse, error)
	GetForm(ctx context.Context, req *IDRequest) (*FormResponse, error)
	ListForms(ctx context.Context, req *ListFormsRequest) (*ListFormsResponse, error)
	ListAppointments(ctx context.Context, req *ListAppointmentsRequest) (*ListAppointmentsResponse, error)
	GetAppointment(ctx context.Context, req *IDRequest) (*AppointmentResponse, error)
	CancelAppointment(ctx context.Context, req *IDRequest) (*CancelAppointmentResponse, error)
	GetSettings(ctx context.Context, req *GetSettingsRequest) (*SettingsResponse, error)
	UpdateSettings(ctx context.Context, req *UpdateSettingsRequest) (*SettingsResponse, error)
}

func fullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// unary adapts a typed method to grpc.MethodDesc, running it through the server's interceptor chain.
func unary[S any, Req any, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	name := fullMethod(service, method)
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: BookingServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(BookingServiceName, "ListAvailableSlots", BookingServiceServer.ListAvailableSlots),
		unary(BookingServiceName, "BookAppointment", BookingServiceServer.BookAppointment),
		unary(BookingServiceName, "ConfirmAppointment", BookingServiceServer.ConfirmAppointment),
		unary(BookingServiceName, "CancelAppointment", BookingServiceServer.CancelAppointment),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "slotbook/v1/booking",
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(AdminServiceName, "CreateForm", AdminServiceServer.CreateForm),
		unary(AdminServiceName, "UpdateForm", AdminServiceServer.UpdateForm),
		unary(AdminServiceName, "GetForm", AdminServiceServer.GetForm),
		unary(AdminServiceName, "ListForms", AdminServiceServer.ListForms),
		unary(AdminServiceName, "ListAppointments", AdminServiceServer.ListAppointments),
		unary(AdminServiceName, "GetAppointment", AdminServiceServer.GetAppointment),
		unary(AdminServiceName, "CancelAppointment", AdminServiceServer.CancelAppointment),
		unary(AdminServiceName, "GetSettings", AdminServiceServer.GetSettings),
		unary(AdminServiceName, "UpdateSettings", AdminServiceServer.UpdateSettings),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "slotbook/v1/admin",
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&bookingServiceDesc, srv)
}

func RegisterAdminServiceServer(s grpc.ServiceRegistrar, srv AdminServiceServer) {
	s.RegisterService(&adminServiceDesc, srv)
}
