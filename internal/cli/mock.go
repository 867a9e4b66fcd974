package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/zarlcorp/core/pkg/zcrypto"
	"github.com/zarlcorp/zguard/internal/mockdevice"
)

const shutdownTimeout = 5 * time.Second

// Mock serves an emulated device until ctx is cancelled.
func Mock(ctx context.Context, env Env, log *slog.Logger, args []string) error {
	fs := newFlagSet(env, "mock", "mock [--addr host:port] [--admin user:pass] [--secret s]")
	addr := fs.String("addr", "127.0.0.1:8080", "listen address")
	admin := fs.String("admin", "admin:admin", "initial administrator as user:pass")
	secret := fs.String("secret", "", "jwt signing secret (random when empty)")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}

	user, pass, ok := strings.Cut(*admin, ":")
	if !ok || user == "" {
		return fmt.Errorf("--admin %q: want user:pass", *admin)
	}
	if *secret == "" {
		*secret = zcrypto.GeneratePassword(32)
	}

	dev, err := mockdevice.New(mockdevice.DefaultSettings(user, pass, *secret), log)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: dev, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	log.Info("mock device listening", "addr", ln.Addr().String(), "admin", user)
	fmt.Fprintf(env.Stdout, "http://%s\n", ln.Addr())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("mock device stopped")
	return nil
}
