package notify

import (
	"context"
	"time"

	"github.com/park285/nickguard/internal/domain"
	"github.com/park285/nickguard/internal/report"
	"github.com/park285/nickguard/internal/scan"
	"go.uber.org/zap"
)

const sendTimeout = 30 * time.Second

// Notifier turns finished scans into report messages.
type Notifier struct {
	out    Egress
	f      *report.Formatter
	logger *zap.Logger
}

func NewNotifier(out Egress, f *report.Formatter, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{out: out, f: f, logger: logger}
}

// Send delivers text, split into chunks that fit one message.
func (n *Notifier) Send(ctx context.Context, text string) error {
	for i, chunk := range report.Split(text, n.f.Limit()) {
		if err := n.out.SendText(ctx, chunk); err != nil {
			n.logger.Warn("notify_send_failed", zap.Int("chunk", i), zap.Error(err))
			return err
		}
	}
	return nil
}

// OnResult matches scan.Orchestrator.OnResult.
func (n *Notifier) OnResult(kind scan.Kind, res domain.ScanResult) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := n.Send(ctx, n.f.Scan(res, kind == scan.KindAIReview)); err != nil {
		n.logger.Warn("notify_result_failed", zap.String("kind", string(kind)), zap.String("scan", res.ID), zap.Error(err))
	}
}
