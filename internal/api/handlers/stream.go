package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parkercarrus/cluster-trading-strategy/internal/backtest"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	topRanking = 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamMessage is one websocket frame
type StreamMessage struct {
	Type   string            `json:"type"` // step, result, error
	Step   *StepMessage      `json:"step,omitempty"`
	Result *BacktestResponse `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// StepMessage summarizes one walk-forward step
type StepMessage struct {
	Index   int                      `json:"index"`
	Train   string                   `json:"train"`
	Feature string                   `json:"feature"`
	Eval    string                   `json:"eval"`
	Rows    int                      `json:"train_rows"`
	Top     []contracts.RankedSymbol `json:"top"`
	Buys    []string                 `json:"buys"`
	Sells   []string                 `json:"sells"`
	Skipped bool                     `json:"skipped"`
	Reason  string                   `json:"reason,omitempty"`
}

// StreamHandler runs a backtest and streams each step over a websocket
type StreamHandler struct {
	backtest *BacktestHandler
	logger   *logger.Logger
}

// NewStreamHandler creates a new stream handler sharing the backtest defaults
func NewStreamHandler(bh *BacktestHandler, log *logger.Logger) *StreamHandler {
	return &StreamHandler{backtest: bh, logger: log}
}

// Stream upgrades the connection and runs the backtest
// GET /ws/backtest?<same parameters as /api/backtest>
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	cfg, err := ParseRunConfig(r.URL.Query(), h.backtest.defaults)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg.Source = "ws"
	cfg.NoCache = true // 캐시 결과에는 단계 정보가 없음

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// 클라이언트 종료 감지 → 실행 취소
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msg StreamMessage) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}

	observer := backtest.StepObserverFunc(func(rep backtest.StepReport) {
		if err := send(StreamMessage{Type: "step", Step: stepMessage(rep)}); err != nil {
			cancel()
		}
	})

	result, err := h.backtest.runner.Run(ctx, cfg, observer)
	if err != nil {
		h.logger.WithError(err).Warn("Streamed backtest failed")
		_ = send(StreamMessage{Type: "error", Error: err.Error()})
		return
	}

	resp := NewBacktestResponse(result)
	_ = send(StreamMessage{Type: "result", Result: &resp})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"), time.Now().Add(writeWait))
}

func stepMessage(rep backtest.StepReport) *StepMessage {
	msg := &StepMessage{
		Index:   rep.Index,
		Train:   rep.Train,
		Feature: rep.Feature,
		Eval:    rep.Eval,
		Rows:    rep.TrainRows,
		Top:     backtest.TopK(rep.Ranking, topRanking),
		Buys:    make([]string, 0, len(rep.Buys)),
		Sells:   make([]string, 0, len(rep.Sells)),
		Skipped: rep.Skipped,
		Reason:  rep.Reason,
	}
	for _, b := range rep.Buys {
		msg.Buys = append(msg.Buys, b.Symbol)
	}
	for _, s := range rep.Sells {
		msg.Sells = append(msg.Sells, s.Symbol)
	}
	return msg
}
