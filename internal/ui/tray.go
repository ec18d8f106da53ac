package ui

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/dustin/go-humanize"
	"github.com/getlantern/systray"

	"github.com/kioskmedia/timeline-agent/internal/editor"
	"github.com/kioskmedia/timeline-agent/internal/ledger"
)

const refreshDelay = 200 * time.Millisecond

type Tray struct {
	janitor *ledger.Janitor
	logger  *slog.Logger

	statusItem  *systray.MenuItem
	historyItem *systray.MenuItem
	resetItem   *systray.MenuItem
	cleanItem   *systray.MenuItem
	pauseItem   *systray.MenuItem

	mu     sync.Mutex
	editor *editor.Editor
	ready  bool

	refresh func(func())
	onQuit  func()
}

type TrayConfig struct {
	Janitor *ledger.Janitor
	Logger  *slog.Logger
	OnQuit  func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		janitor: cfg.Janitor,
		logger:  cfg.Logger,
		refresh: debounce.New(refreshDelay),
		onQuit:  cfg.OnQuit,
	}
}

// Attach binds the editor whose state the menu reflects.
func (t *Tray) Attach(ed *editor.Editor) {
	t.mu.Lock()
	t.editor = ed
	t.mu.Unlock()
	t.Refresh()
}

// Refresh schedules a menu update. Bursts of editor changes such as a
// pointer drag collapse into one.
func (t *Tray) Refresh() {
	t.refresh(t.render)
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Timeline")
	systray.SetTooltip("Timeline Agent")

	t.statusItem = systray.AddMenuItem("No media loaded", "Active media")
	t.statusItem.Disable()
	t.historyItem = systray.AddMenuItem("No edits", "Applied edits")
	t.historyItem.Disable()

	systray.AddSeparator()

	t.resetItem = systray.AddMenuItem("Reset Zoom", "Show the whole timeline")
	t.cleanItem = systray.AddMenuItem("Clean Temp Files", "Remove leftover edit artifacts")
	t.pauseItem = systray.AddMenuItem("Pause Cleanup", "Pause background cleanup")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Timeline Agent")

	t.mu.Lock()
	t.ready = true
	t.mu.Unlock()
	t.render()

	go func() {
		for {
			select {
			case <-t.resetItem.ClickedCh:
				t.resetZoom()
			case <-t.cleanItem.ClickedCh:
				t.clean()
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) render() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready || t.editor == nil {
		return
	}

	snap := t.editor.Snapshot()
	t.statusItem.SetTitle(StatusLine(snap))
	if snap.Session == nil {
		t.historyItem.SetTitle(historyLine(0))
		t.resetItem.Disable()
		return
	}
	t.historyItem.SetTitle(historyLine(snap.Session.ChainLength))
	if snap.Zoom.IsFull() {
		t.resetItem.Disable()
	} else {
		t.resetItem.Enable()
	}
}

func (t *Tray) resetZoom() {
	t.mu.Lock()
	ed := t.editor
	t.mu.Unlock()
	if ed != nil {
		ed.ResetZoom()
	}
}

func (t *Tray) clean() {
	if t.janitor == nil {
		return
	}
	t.cleanItem.Disable()
	defer t.cleanItem.Enable()

	report, err := t.janitor.Sweep(context.Background())
	if err != nil {
		t.logger.Error("tray cleanup failed", "error", err)
		return
	}
	t.cleanItem.SetTooltip("Last run freed " + humanize.Bytes(uint64(report.FreedBytes)))
	t.logger.Info("tray cleanup finished", "removed", report.Removed, "freed", humanize.Bytes(uint64(report.FreedBytes)))
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.janitor == nil {
		return
	}
	if t.janitor.IsPaused() {
		t.janitor.Resume()
		t.pauseItem.SetTitle("Pause Cleanup")
	} else {
		t.janitor.Pause()
		t.pauseItem.SetTitle("Resume Cleanup")
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}
