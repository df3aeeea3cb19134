package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/getlantern/systray"
	"github.com/go-vgo/robotgo"
	hook "github.com/robotn/gohook"

	"voiceassistant/pkg/audio"
	"voiceassistant/pkg/convai"
	"voiceassistant/pkg/credentials"
	"voiceassistant/pkg/session"
	"voiceassistant/pkg/sink"
)

// app is the tray application. Menu widgets are only touched by uiLoop.
type app struct {
	store *credentials.Store
	queue *sink.Queue
	ctrl  *session.Controller

	states chan session.State
	quit   chan struct{}

	deviceMu sync.Mutex
	device   *audio.Device

	wizardMu sync.Mutex

	replyMu   sync.Mutex
	lastReply string

	mStatus     *systray.MenuItem
	mToggle     *systray.MenuItem
	mImport     *systray.MenuItem
	mTranscript *systray.MenuItem
	mCopy       *systray.MenuItem
	mQuit       *systray.MenuItem
	slots       []*systray.MenuItem
}

func newApp() *app {
	path, err := credentials.DefaultPath()
	if err != nil {
		logger.Warnf("%v", err)
		path = credentials.FileName
	}

	a := &app{
		store:  credentials.NewStore(path, environ),
		queue:  sink.NewQueue(32),
		states: make(chan session.State, 8),
		quit:   make(chan struct{}),
	}
	a.ctrl = session.NewController(session.Config{
		Dial: a.dial,
		Sink: a.queue,
		OnStateChange: func(s session.State) {
			select {
			case a.states <- s:
			case <-a.quit:
			}
		},
	})
	return a
}

func (a *app) onReady() {
	systray.SetIcon(iconIdle)
	systray.SetTitle("")
	systray.SetTooltip("Voice assistant")

	a.mStatus = systray.AddMenuItem(statusTitle(session.Idle), "Session status")
	a.mStatus.Disable()
	systray.AddSeparator()
	a.mToggle = systray.AddMenuItem("Start session", "Talk to your agent (Cmd+Shift+Space)")
	a.mImport = systray.AddMenuItem("Import credentials…", "Choose a .env file with API_KEY and AGENT_ID")
	a.mTranscript = systray.AddMenuItem("Transcript", "Latest lines of the conversation")
	for i := 0; i < transcriptLines; i++ {
		slot := a.mTranscript.AddSubMenuItem("", "")
		slot.Disable()
		slot.Hide()
		a.slots = append(a.slots, slot)
	}
	a.mCopy = systray.AddMenuItem("Copy last reply", "Copy the agent's last answer to the clipboard")
	a.mCopy.Disable()
	systray.AddSeparator()
	a.mQuit = systray.AddMenuItem("Quit", "Quit the application")

	go a.uiLoop()
	go a.handleClicks()
	go a.startHotkeyListener()

	// Signals quit through onExit so a live session is stopped first.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go quitOnSignal(ctx, stop, systray.Quit)

	if _, err := a.store.Load(); errors.Is(err, credentials.ErrMissingCredentials) {
		logger.Infof("No credentials found, opening the import wizard")
		go a.runImportWizard()
	}
}

func (a *app) onExit() {
	a.ctrl.Stop()
	a.queue.Close()
	close(a.quit)
	hook.End()

	a.deviceMu.Lock()
	defer a.deviceMu.Unlock()
	if a.device != nil {
		a.device.Close()
	}
	logger.Infof("Voice assistant exited")
}

func (a *app) handleClicks() {
	for {
		select {
		case <-a.mToggle.ClickedCh:
			go a.toggle()
		case <-a.mImport.ClickedCh:
			go a.runImportWizard()
		case <-a.mCopy.ClickedCh:
			a.copyLastReply()
		case <-a.mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

// uiLoop is the only goroutine that updates the menu after onReady.
func (a *app) uiLoop() {
	var t transcript
	for {
		select {
		case <-a.quit:
			return
		case s := <-a.states:
			a.renderState(s)
		case ev := <-a.queue.Events():
			t.add(ev)
			a.renderTranscript(&t)
		}
	}
}

func (a *app) renderState(s session.State) {
	systray.SetIcon(stateIcon(s))
	a.mStatus.SetTitle(statusTitle(s))
	if s == session.Idle {
		a.mToggle.SetTitle("Start session")
	} else {
		a.mToggle.SetTitle("Stop session")
	}
	if s == session.Stopping {
		a.mToggle.Disable()
	} else {
		a.mToggle.Enable()
	}
}

func (a *app) renderTranscript(t *transcript) {
	titles := t.titles()
	for i, slot := range a.slots {
		if i < len(titles) {
			slot.SetTitle(titles[i])
			slot.Show()
		} else {
			slot.Hide()
		}
	}

	if t.lastReply != "" {
		a.replyMu.Lock()
		a.lastReply = t.lastReply
		a.replyMu.Unlock()
		a.mCopy.Enable()
	}
}

// toggle starts a session when idle and stops it otherwise. Missing
// credentials open the import wizard first.
func (a *app) toggle() {
	if a.ctrl.State() != session.Idle {
		a.ctrl.Stop()
		return
	}

	creds, err := a.store.Load()
	if errors.Is(err, credentials.ErrMissingCredentials) {
		if !a.runImportWizard() {
			return
		}
		creds, err = a.store.Load()
	}
	if err != nil {
		a.queue.OnSystemMessage("Error: " + err.Error())
		return
	}

	if err := a.ctrl.Start(creds); err != nil && !errors.Is(err, session.ErrAlreadyActive) {
		a.queue.OnSystemMessage("Error: " + err.Error())
	}
}

// dial opens the audio device on first use and reloads agent overrides for
// every session.
func (a *app) dial(creds credentials.Credentials, l session.Listener) (session.Conversation, error) {
	device, err := a.audioDevice()
	if err != nil {
		return nil, err
	}
	return convai.Dialer(device, loadOverrides())(creds, l)
}

func (a *app) audioDevice() (*audio.Device, error) {
	a.deviceMu.Lock()
	defer a.deviceMu.Unlock()
	if a.device == nil {
		device, err := audio.NewDevice()
		if err != nil {
			return nil, err
		}
		a.device = device
	}
	return a.device, nil
}

func loadOverrides() *convai.Overrides {
	path, err := convai.DefaultOverridesPath()
	if err != nil {
		logger.Warnf("%v", err)
		return nil
	}
	overrides, err := convai.LoadOverrides(path)
	if err != nil {
		logger.Warnf("Ignoring agent overrides: %v", err)
		return nil
	}
	return overrides
}

func (a *app) copyLastReply() {
	a.replyMu.Lock()
	text := a.lastReply
	a.replyMu.Unlock()
	if text == "" {
		return
	}
	if err := robotgo.WriteAll(text); err != nil {
		logger.Errorf("Failed to copy reply: %v", err)
	}
}

func (a *app) startHotkeyListener() {
	logger.Infof("Listening for hotkeys...")
	// Toggle: Cmd + Shift + Space
	hook.Register(hook.KeyDown, []string{"space", "shift", "command"}, func(e hook.Event) {
		go a.toggle()
	})

	// Cancel: Escape
	hook.Register(hook.KeyDown, []string{"esc"}, func(e hook.Event) {
		go a.ctrl.Stop()
	})

	s := hook.Start()
	<-hook.Process(s)
}

// quitOnSignal calls quit once ctx is done. stop restores default signal
// handling first so a second signal can still kill a stuck teardown.
func quitOnSignal(ctx context.Context, stop context.CancelFunc, quit func()) {
	<-ctx.Done()
	stop()
	logger.Infof("Received termination signal, quitting")
	quit()
}
