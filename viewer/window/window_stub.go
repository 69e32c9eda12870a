//go:build !ebiten

package window

import (
	"github.com/wricardo/gridworld-viewer/viewer/config"
	"github.com/wricardo/gridworld-viewer/viewer/session"
	"go.uber.org/zap"
)

// Run always fails without the ebiten build tag.
func Run(sess *session.Session, cfg config.Config, logger *zap.Logger) error {
	return ErrNoWindow
}
