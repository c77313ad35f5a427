package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quillos/kernel/internal/cap"
	"github.com/quillos/kernel/internal/kernel"
	"github.com/quillos/kernel/internal/ksyscall"
	"github.com/quillos/kernel/internal/logging"
)

// Handlers exposes the kernel over the introspection API.
type Handlers struct {
	kernel *kernel.Kernel
	log    *logging.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(k *kernel.Kernel, log *logging.Logger) *Handlers {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handlers{kernel: k, log: log}
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"boot_id": h.kernel.BootID(),
		"uptime":  int64(h.kernel.Uptime().Seconds()),
	})
}

// Stats returns the aggregated control-plane summary.
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.kernel.GetStats())
}

// Channels lists every channel endpoint.
func (h *Handlers) Channels(c *gin.Context) {
	channels := h.kernel.Channels()
	c.JSON(http.StatusOK, gin.H{
		"channels": channels,
		"count":    len(channels),
	})
}

// GetCapability returns one capability's summary. Revoked and unknown
// ids both report 404.
func (h *Handlers) GetCapability(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid capability id"})
		return
	}

	info, err := h.kernel.Capability(cap.ID(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "capability not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// SchedulerTasks lists every known task.
func (h *Handlers) SchedulerTasks(c *gin.Context) {
	tasks := h.kernel.Tasks()
	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// SyscallRequest is the POST /syscall body.
type SyscallRequest struct {
	Num  uint64 `json:"num"`
	Arg1 uint64 `json:"arg1"`
	Arg2 uint64 `json:"arg2"`
	Arg3 uint64 `json:"arg3"`
	Arg4 uint64 `json:"arg4"`
	Arg5 uint64 `json:"arg5"`
	Arg6 uint64 `json:"arg6"`
}

// Syscall dispatches a syscall on behalf of the running task. Meant for
// debugging and test drivers, not production traffic.
func (h *Handlers) Syscall(c *gin.Context) {
	var req SyscallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ret := h.kernel.Syscall(ksyscall.Context{
		Num:  ksyscall.Number(req.Num),
		Arg1: req.Arg1,
		Arg2: req.Arg2,
		Arg3: req.Arg3,
		Arg4: req.Arg4,
		Arg5: req.Arg5,
		Arg6: req.Arg6,
	})
	c.JSON(http.StatusOK, gin.H{"ret": ret})
}
