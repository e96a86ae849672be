package handlers

import (
	"context"
	"errors"
	"net/http"
	"syscall"

	"github.com/marmos91/dittobtt/internal/logger"
	"github.com/marmos91/dittobtt/pkg/btt"
)

// Device is the view of a translation table the handlers need. *btt.BTT
// implements it.
type Device interface {
	Read(ctx context.Context, sector uint64, buf []byte) error
	Write(ctx context.Context, sector uint64, buf []byte) error
	Check(ctx context.Context) (*btt.CheckReport, error)
	Info() btt.Info
	State() btt.State
	LBASize() uint32
	NumLBA() uint64
	ReadOnly() bool
}

// DeviceHandler serves device metadata.
type DeviceHandler struct {
	dev Device
}

// NewDeviceHandler creates a device handler.
func NewDeviceHandler(dev Device) *DeviceHandler {
	return &DeviceHandler{dev: dev}
}

// Get handles GET /api/v1/device.
func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.dev.Info())
}

// Check handles GET and POST /api/v1/check. It reports 200 with the findings even
// when problems exist; only a failure to run the check is an error.
func (h *DeviceHandler) Check(w http.ResponseWriter, r *http.Request) {
	report, err := h.dev.Check(r.Context())
	if err != nil {
		deviceError(w, r, err)
		return
	}
	WriteJSONOK(w, report)
}

// deviceError maps a btt error to a problem response carrying the errno a
// block client would see.
func deviceError(w http.ResponseWriter, r *http.Request, err error) {
	p := &Problem{
		Type:   "about:blank",
		Detail: err.Error(),
		Errno:  errnoName(btt.Status(err)),
	}

	switch {
	case errors.Is(err, btt.ErrInvalidArgument):
		p.Status, p.Title = http.StatusBadRequest, "Bad Request"
	case errors.Is(err, btt.ErrOutOfRange):
		p.Status, p.Title = http.StatusRequestedRangeNotSatisfiable, "Requested Range Not Satisfiable"
	case errors.Is(err, btt.ErrReadOnly):
		p.Status, p.Title = http.StatusForbidden, "Forbidden"
	case errors.Is(err, btt.ErrClosed):
		p.Status, p.Title = http.StatusServiceUnavailable, "Service Unavailable"
	default:
		p.Status, p.Title = http.StatusInternalServerError, "Internal Server Error"
		logger.ErrorCtx(r.Context(), "device error", logger.KeyError, err)
	}
	writeProblem(w, p)
}

func errnoName(e syscall.Errno) string {
	switch e {
	case syscall.EIO:
		return "EIO"
	case syscall.EINVAL:
		return "EINVAL"
	case syscall.ENOMEM:
		return "ENOMEM"
	case syscall.EROFS:
		return "EROFS"
	case 0:
		return ""
	default:
		return e.Error()
	}
}
