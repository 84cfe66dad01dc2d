//go:build gui

package gui

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"time"

	"candlecard/blow"
	"candlecard/calendar"
	"candlecard/greeting"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// Controls is what the window drives.
type Controls interface {
	Open(ctx context.Context) error
	Start(ctx context.Context) error
	Reset()
	Level() float64
	WishText() string
	State() blow.State
}

type App struct {
	fyneApp fyne.App
	window  fyne.Window
	onReady func()

	card      greeting.Card
	ctl       Controls
	cake      *CakeWidget
	status    *widget.Label
	level     *widget.ProgressBar
	resetBtn  *widget.Button
	listenBtn *widget.Button
	noticed   bool
	stopPoll  chan struct{}

	trayMenu    *fyne.Menu
	relightItem *fyne.MenuItem
}

func NewApp(onReady func()) *App {
	return &App{onReady: onReady, stopPoll: make(chan struct{})}
}

func Run(a *App) error {
	a.fyneApp = app.NewWithID("io.candlecard.gui")
	a.fyneApp.Settings().SetTheme(&warmTheme{})

	a.window = a.fyneApp.NewWindow("candlecard")
	a.window.SetContent(container.NewCenter(widget.NewLabel("Loading...")))
	a.window.Resize(fyne.NewSize(420, 640))
	a.window.SetOnClosed(func() { close(a.stopPoll) })

	if desk, ok := a.fyneApp.(desktop.App); ok {
		a.relightItem = fyne.NewMenuItem("Relight candles", a.reset)
		a.relightItem.Disabled = true
		a.trayMenu = fyne.NewMenu("candlecard",
			a.relightItem,
			fyne.NewMenuItem("Quit", func() {
				a.fyneApp.Quit()
			}),
		)
		desk.SetSystemTrayMenu(a.trayMenu)
		desk.SetSystemTrayIcon(fyne.NewStaticResource("candle.png", trayIcon()))
	}

	go a.onReady()

	a.window.ShowAndRun()
	return nil
}

func (a *App) Quit() {
	if a.fyneApp != nil {
		a.fyneApp.Quit()
	}
}

// Bind shows the closed card for g and wires its buttons to ctl. Safe to call
// from any goroutine.
func (a *App) Bind(g greeting.Card, ctl Controls) {
	fyne.Do(func() {
		a.card = g
		a.ctl = ctl
		a.window.SetContent(a.closedCard())
	})
}

func (a *App) closedCard() fyne.CanvasObject {
	heading := a.heading()
	confetti := widget.NewLabelWithStyle(a.card.Confetti, fyne.TextAlignCenter, fyne.TextStyle{})
	open := widget.NewButton("Open the card", a.open)
	open.Importance = widget.HighImportance
	return container.NewCenter(container.NewVBox(confetti, heading, confetti, open))
}

func (a *App) heading() *widget.Label {
	l := widget.NewLabelWithStyle(a.card.Heading, fyne.TextAlignCenter, fyne.TextStyle{Bold: true})
	l.SizeName = theme.SizeNameHeadingText
	return l
}

func (a *App) open() {
	a.cake = NewCakeWidget(a.card.Candles)
	a.status = widget.NewLabelWithStyle("waiting for the microphone...", fyne.TextAlignCenter, fyne.TextStyle{})
	a.level = widget.NewProgressBar()
	a.level.Max = 255
	a.level.TextFormatter = func() string { return "" }
	a.resetBtn = widget.NewButton("Relight candles", a.reset)
	a.resetBtn.Hide()
	a.listenBtn = widget.NewButton("Listen again", func() { go a.start(false) })
	a.listenBtn.Hide()

	a.window.SetContent(container.NewVBox(
		a.heading(),
		container.NewCenter(a.cake),
		a.calendar(),
		a.status,
		a.level,
		container.NewCenter(container.NewHBox(a.resetBtn, a.listenBtn)),
	))

	go a.pollLevel()
	go a.start(true)
}

func (a *App) start(open bool) {
	var err error
	if open {
		err = a.ctl.Open(context.Background())
	} else {
		err = a.ctl.Start(context.Background())
	}
	if err != nil && !errors.Is(err, blow.ErrPermissionDenied) {
		fyne.Do(func() { a.status.SetText(err.Error()) })
	}
}

// canRelight reports whether the candles are out, the only time they can be
// relit.
func canRelight(ctl Controls) bool {
	return ctl != nil && ctl.State().Latched
}

func (a *App) reset() {
	if !canRelight(a.ctl) {
		return
	}
	a.ctl.Reset()
	if a.cake != nil {
		a.cake.SetFlame(FlameLit)
		a.resetBtn.Hide()
	}
	a.setRelightEnabled(false)
}

func (a *App) setRelightEnabled(on bool) {
	if a.relightItem == nil || a.relightItem.Disabled == !on {
		return
	}
	a.relightItem.Disabled = !on
	a.trayMenu.Refresh()
}

func (a *App) calendar() fyne.CanvasObject {
	cells := calendar.Build(a.card.Year, a.card.Month, a.card.SpecialDay)
	grid := container.NewGridWithColumns(len(calendar.Headers))
	for _, row := range calendar.Rows(cells) {
		for _, c := range row {
			grid.Add(calendarCell(c))
		}
	}
	month := widget.NewLabelWithStyle(fmt.Sprintf("%s %d", a.card.Month, a.card.Year), fyne.TextAlignCenter, fyne.TextStyle{Bold: true})
	return container.NewVBox(month, container.NewCenter(grid))
}

func calendarCell(c calendar.Cell) fyne.CanvasObject {
	switch c.Kind {
	case calendar.KindHeader:
		t := canvas.NewText(c.Label, color.RGBA{150, 150, 150, 255})
		t.Alignment = fyne.TextAlignCenter
		return t
	case calendar.KindDate:
		t := canvas.NewText(c.Label, color.RGBA{220, 220, 220, 255})
		t.Alignment = fyne.TextAlignCenter
		if !c.IsSpecialDay {
			return t
		}
		t.Color = color.White
		t.TextStyle = fyne.TextStyle{Bold: true}
		bg := canvas.NewCircle(pink)
		return container.NewStack(bg, t)
	}
	return canvas.NewText("", color.Transparent)
}

func (a *App) pollLevel() {
	ticker := time.NewTicker(60 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopPoll:
			return
		case <-ticker.C:
			level := a.ctl.Level()
			fyne.Do(func() { a.level.SetValue(level) })
		}
	}
}

// EventSink implementation

func (a *App) DetectorState(s blow.State) {
	fyne.Do(func() {
		if a.cake == nil {
			return
		}
		switch {
		case s.Latched:
			a.cake.SetFlame(FlameOut)
			a.status.SetText("The candles are out. Happy birthday!")
			a.resetBtn.Show()
		case s.Blowing || s.Pending:
			a.cake.SetFlame(FlameLow)
		case s.Armed:
			a.cake.SetFlame(FlameLit)
			a.status.SetText("Make a wish and blow out the candles!")
			a.resetBtn.Hide()
		}
		a.setRelightEnabled(s.Latched)
		if s.Armed {
			a.listenBtn.Hide()
		}
	})
}

func (a *App) BlownOut() {
	fyne.Do(func() {
		wishes := container.NewVBox()
		for _, w := range a.card.Wishes {
			l := widget.NewLabel(w)
			l.Wrapping = fyne.TextWrapWord
			wishes.Add(l)
		}
		copyBtn := widget.NewButton("Copy wishes", func() {
			a.fyneApp.Clipboard().SetContent(a.ctl.WishText())
		})
		content := container.NewVBox(
			widget.NewLabelWithStyle(a.card.Confetti, fyne.TextAlignCenter, fyne.TextStyle{}),
			wishes,
			copyBtn,
		)
		d := dialog.NewCustom(a.card.Title, "Close", content, a.window)
		d.Resize(fyne.NewSize(360, 300))
		d.Show()
	})
}

func (a *App) PermissionDenied(err error) {
	fyne.Do(func() {
		if a.status != nil {
			a.status.SetText("Microphone unavailable")
			a.listenBtn.Show()
		}
		if a.noticed {
			return
		}
		a.noticed = true
		dialog.ShowError(fmt.Errorf("blowing out the candles needs the microphone: %w", err), a.window)
	})
}

func (a *App) StreamEnded() {
	fyne.Do(func() {
		if a.status == nil {
			return
		}
		a.status.SetText("Microphone stopped")
		a.listenBtn.Show()
	})
}
