package main

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"os"
	"time"

	"snapqr/internal/ipc"
	"snapqr/internal/sessionlog"
	"snapqr/internal/singleinstance"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/dist
var assets embed.FS

const activationTimeout = 3 * time.Second

func main() {
	app := NewApp()
	slog.SetDefault(newAppLogger(app))

	// Single-instance check before any Wails/WebView2 initialization.
	instanceLock, err := singleinstance.TryLock(singleinstance.DefaultName())
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		slog.Info("[DEBUG-SINGLE] another instance is already running, signaling activation")
		ctx, cancel := context.WithTimeout(context.Background(), activationTimeout)
		_, sendErr := ipc.Send(ctx, "", ipc.Request{Command: ipc.CommandActivate})
		cancel()
		if sendErr != nil {
			slog.Warn("[DEBUG-SINGLE] failed to signal existing instance", "error", sendErr)
		}
		return
	}
	if err != nil {
		slog.Warn("[DEBUG-SINGLE] instance lock failed, proceeding without single-instance guard", "error", err)
	}
	if instanceLock != nil {
		defer func() {
			if releaseErr := instanceLock.Release(); releaseErr != nil {
				slog.Warn("[DEBUG-SINGLE] instance lock release failed", "error", releaseErr)
			}
		}()
	}

	err = wails.Run(&options.App{
		Title:     "snapqr",
		Width:     480,
		Height:    640,
		MinWidth:  360,
		MinHeight: 420,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 250, G: 250, B: 250, A: 1},
		OnStartup:        app.startup,
		OnBeforeClose:    app.beforeClose,
		OnShutdown:       app.shutdown,
		Bind: []any{
			app,
		},
	})
	if err != nil {
		slog.Error("[DEBUG-SINGLE] wails run failed", "error", err)
	}
}

// newAppLogger writes text logs to stderr at the app's configured level and
// tees warn+ records into the session log.
func newAppLogger(app *App) *slog.Logger {
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: app.logLevel})
	return slog.New(sessionlog.NewTeeHandler(base, slog.LevelWarn, app.recordSessionLog))
}
