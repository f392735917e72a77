package ws

import (
	"context"
	"net/http"

	"github.com/dkeye/VoiceMux/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Handler is the authority side that consumes connections.
type Handler interface {
	Attach(cid core.ConnID, conn core.SignalConnection, cancel context.CancelFunc)
	HandlePacket(cid core.ConnID, data []byte)
	Detach(cid core.ConnID)
}

type Controller struct {
	handler Handler
	opts    Options
}

func NewController(h Handler, opts Options) *Controller {
	return &Controller{handler: h, opts: opts}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the request and runs the pumps until ctx ends or the socket fails.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	cid := core.ConnID(uuid.NewString())
	log.Info().Str("module", "adapters.ws").Str("conn", string(cid)).Str("client_token", c.GetString("client_token")).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("ws upgrade")
		return
	}

	conn := newConn(ws, string(cid), ctl.opts)
	ctx, cancel := context.WithCancel(ctx)
	ctl.handler.Attach(cid, conn, cancel)

	go conn.writePump(ctx)
	go func() {
		defer cancel()
		defer ctl.handler.Detach(cid)
		conn.readPump(ctx, func(data []byte) { ctl.handler.HandlePacket(cid, data) })
	}()
}
