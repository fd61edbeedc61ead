package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/tinoosan/tubeconv/internal/data"
	"github.com/tinoosan/tubeconv/internal/notify"
	"github.com/tinoosan/tubeconv/internal/reqid"
)

const writeTimeout = 10 * time.Second

// Inbound push-channel message types.
const (
	msgRegister      = "register"
	msgUpdateRequest = "update_request"
)

type inbound struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type tokenPayload struct {
	Token string `json:"token"`
}

// ServeWS runs the push channel. A client registers for one or more
// conversion tokens and then receives every notification published for
// them; update_request replays the latest one on demand.
func (h *ConversionHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		markErr(w, err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "")

	l := reqid.Logger(r.Context(), h.l)
	client := h.hub.NewClient()
	defer h.hub.Leave(client)
	l = l.With("client", client.ID())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-client.C():
				wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
				err := wsjson.Write(wctx, c, n)
				wcancel()
				if err != nil {
					l.Debug("push write failed", "err", err)
					return
				}
			}
		}
	}()

	for {
		var msg inbound
		if err := wsjson.Read(ctx, c, &msg); err != nil {
			cancel()
			<-writerDone
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.Close(websocket.StatusNormalClosure, "")
			default:
				if !errors.Is(err, context.Canceled) {
					l.Debug("push read failed", "err", err)
				}
			}
			return
		}
		h.handleInbound(client, msg)
	}
}

func (h *ConversionHandler) handleInbound(c *notify.Client, msg inbound) {
	switch msg.Type {
	case msgRegister:
		if msg.Token == "" || !h.svc.Lookup(msg.Token) {
			h.hub.Send(c, data.Notification{Signal: data.SignalRegisterError, Data: data.ErrorPayload{Message: "unknown conversion token"}})
			return
		}
		h.hub.Join(msg.Token, c)
		h.hub.Send(c, data.Notification{Signal: data.SignalRegistered, Data: tokenPayload{Token: msg.Token}})
	case msgUpdateRequest:
		n, err := h.svc.Replay(msg.Token)
		if err != nil {
			h.hub.Send(c, data.Notification{Signal: data.SignalUpdateError, Data: data.ErrorPayload{Message: "unknown conversion token"}})
			return
		}
		h.hub.Send(c, n)
	default:
		h.hub.Send(c, data.Notification{Signal: data.SignalError, Data: data.ErrorPayload{Message: "unknown message type"}})
	}
}
