package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/jamwheel/internal/adapters/mq/retry"
	"github.com/okian/jamwheel/internal/adapters/repository"
	service "github.com/okian/jamwheel/internal/app"
	"github.com/okian/jamwheel/internal/domain/teams"
	"github.com/okian/jamwheel/internal/domain/wheel"
	"github.com/okian/jamwheel/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type stopTimer struct{}

func (stopTimer) Stop() bool { return true }

// clock captures scheduled callbacks so tests decide when they run.
type clock struct {
	mu  sync.Mutex
	fns []func()
}

func (c *clock) add(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, f)
}

func (c *clock) wheel(_ time.Duration, f func()) wheel.Timer { c.add(f); return stopTimer{} }
func (c *clock) retry(_ time.Duration, f func()) retry.Timer { c.add(f); return stopTimer{} }

func (c *clock) fire(i int) {
	c.mu.Lock()
	f := c.fns[i]
	c.mu.Unlock()
	f()
}

func (c *clock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fns)
}

// flakyStore fails PutWheel while failures is positive.
type flakyStore struct {
	repository.Store
	failures atomic.Int32
}

func (f *flakyStore) PutWheel(ctx context.Context, jamID string, kind wheel.Kind, doc wheel.Document) error {
	if f.failures.Add(-1) >= 0 {
		return errors.New("database is locked")
	}
	return f.Store.PutWheel(ctx, jamID, kind, doc)
}

func themes() wheel.Configuration {
	return wheel.Configuration{
		Title: "Themes",
		Entries: []wheel.Entry{
			{Text: "Robots", Weight: 2, Enabled: true},
			{Text: "Water", Weight: 1, Enabled: true},
		},
	}
}

func TestServiceWheel(t *testing.T) {
	Convey("Given a started service with manual clocks", t, func() {
		ctx := context.Background()
		spinClock, retryClock := &clock{}, &clock{}
		store := &flakyStore{Store: repository.NewMemoryStore()}
		svc := service.New(
			service.WithStore(store),
			service.WithLogger(logger.Nop()),
			service.WithSpinnerOptions(
				wheel.WithScheduler(spinClock.wheel),
				wheel.WithRandomSource(wheel.NewSeededRNG(3)),
			),
			service.WithRetryOptions(
				retry.WithScheduler(retryClock.retry),
				retry.WithJitter(func() time.Duration { return 0 }),
			),
		)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("When loading a jam that never saved a wheel", func() {
			doc, err := svc.LoadWheel(ctx, "jam", wheel.KindTheme)
			So(err, ShouldBeNil)
			So(doc.WheelConfig.Entries, ShouldBeEmpty)
			So(doc.Theme, ShouldBeNil)

			_, err = svc.Spin(ctx, "jam", wheel.KindTheme)
			So(err, ShouldEqual, wheel.ErrNoEnabledEntries)
		})

		Convey("When saving a configuration", func() {
			_, err := svc.SaveWheel(ctx, "jam", wheel.KindTheme, themes())
			So(err, ShouldBeNil)

			Convey("Then it loads back and the spinner uses it", func() {
				doc, err := svc.LoadWheel(ctx, "jam", wheel.KindTheme)
				So(err, ShouldBeNil)
				So(doc.WheelConfig, ShouldResemble, themes())
				view, err := svc.SpinState(ctx, "jam", wheel.KindTheme)
				So(err, ShouldBeNil)
				So(view.CanSpin, ShouldBeTrue)
				So(len(view.Slices), ShouldEqual, 3)
			})

			Convey("And an entry without text is rejected", func() {
				bad := themes()
				bad.Entries[0].Text = " "
				_, err := svc.SaveWheel(ctx, "jam", wheel.KindTheme, bad)
				So(errors.Is(err, wheel.ErrInvalidWheelFile), ShouldBeTrue)
			})

			Convey("And a broken file import leaves it untouched", func() {
				_, err := svc.ImportWheelFile(ctx, "jam", wheel.KindTheme, "x.wheel", strings.NewReader(`{"title":`))
				So(errors.Is(err, wheel.ErrInvalidWheelFile), ShouldBeTrue)
				doc, _ := svc.LoadWheel(ctx, "jam", wheel.KindTheme)
				So(doc.WheelConfig.Title, ShouldEqual, "Themes")
			})

			Convey("And a valid file import replaces it", func() {
				doc, err := svc.ImportWheelFile(ctx, "jam", wheel.KindTheme, "new.json", strings.NewReader(`{"title":"New","entries":[{"text":"Space"}]}`))
				So(err, ShouldBeNil)
				So(doc.WheelConfig.Entries, ShouldResemble, []wheel.Entry{{Text: "Space", Weight: 1, Enabled: true}})
			})

			Convey("And exporting names the file after the title", func() {
				name, data, err := svc.ExportWheelFile(ctx, "jam", wheel.KindTheme)
				So(err, ShouldBeNil)
				So(name, ShouldEqual, "themes.wheel")
				So(string(data), ShouldContainSubstring, `"Robots"`)
			})

			Convey("And spinning", func() {
				res, err := svc.Spin(ctx, "jam", wheel.KindTheme)
				So(err, ShouldBeNil)
				So(len(res.Slices), ShouldEqual, 3)
				So(res.Winner, ShouldResemble, res.Slices[res.Index])
				So(res.DurationMS, ShouldEqual, wheel.DefaultSpinDuration.Milliseconds())
				idx, err := wheel.DecodeIndex(res.RotationDegrees, len(res.Slices))
				So(err, ShouldBeNil)
				So(idx, ShouldEqual, res.Index)

				Convey("Then a second spin and a save are refused", func() {
					_, err := svc.Spin(ctx, "jam", wheel.KindTheme)
					So(err, ShouldEqual, wheel.ErrSpinInProgress)
					_, err = svc.SaveWheel(ctx, "jam", wheel.KindTheme, themes())
					So(err, ShouldEqual, wheel.ErrSpinInProgress)
				})

				Convey("Then the winner is saved as the theme once the spin ends", func() {
					spinClock.fire(0)
					So(retryClock.count(), ShouldEqual, 1)
					retryClock.fire(0)

					doc, err := svc.LoadWheel(ctx, "jam", wheel.KindTheme)
					So(err, ShouldBeNil)
					So(doc.Theme, ShouldNotBeNil)
					So(*doc.Theme, ShouldEqual, res.Winner.Text)
					So(doc.LastWinner.Text, ShouldEqual, res.Winner.Text)
					So(doc.WheelConfig, ShouldResemble, themes())
				})

				Convey("Then a transient store failure is retried", func() {
					store.failures.Store(1)
					spinClock.fire(0)
					retryClock.fire(0)
					So(retryClock.count(), ShouldEqual, 2)
					So(svc.GetStats()["pendingWrites"], ShouldEqual, 1)

					retryClock.fire(1)
					doc, err := svc.LoadWheel(ctx, "jam", wheel.KindTheme)
					So(err, ShouldBeNil)
					So(*doc.Theme, ShouldEqual, res.Winner.Text)
					So(svc.GetStats()["pendingWrites"], ShouldEqual, 0)
				})

				Convey("Then a reset drops the winner", func() {
					So(svc.ResetSpin(ctx, "jam", wheel.KindTheme), ShouldBeNil)
					spinClock.fire(0)
					So(retryClock.count(), ShouldEqual, 0)
					view, _ := svc.SpinState(ctx, "jam", wheel.KindTheme)
					So(view.RotationDegrees, ShouldEqual, 0)
					So(view.Spinning, ShouldBeFalse)
				})
			})
		})

		Convey("When the jam id is empty", func() {
			_, err := svc.LoadWheel(ctx, "", wheel.KindTheme)
			So(errors.Is(err, repository.ErrInvalidJamID), ShouldBeTrue)
		})

		Convey("When the wheel kind is unknown", func() {
			_, err := svc.Spin(ctx, "jam", wheel.Kind("bonus"))
			So(errors.Is(err, wheel.ErrUnknownKind), ShouldBeTrue)
		})

		Convey("When a configuration expands past the slice limit", func() {
			big := wheel.Configuration{Title: "Big"}
			for i := 0; i <= wheel.MaxSlices/1000; i++ {
				big.Entries = append(big.Entries, wheel.Entry{Text: "x", Weight: 1000, Enabled: true})
			}
			_, err := svc.SaveWheel(ctx, "jam", wheel.KindTheme, big)

			Convey("Then it is rejected and nothing is stored", func() {
				So(errors.Is(err, wheel.ErrInvalidWheelFile), ShouldBeTrue)
				doc, err := svc.LoadWheel(ctx, "jam", wheel.KindTheme)
				So(err, ShouldBeNil)
				So(doc.WheelConfig.Entries, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a service that was never started", t, func() {
		svc := service.New(service.WithLogger(logger.Nop()))
		_, err := svc.LoadWheel(context.Background(), "jam", wheel.KindTheme)
		So(err, ShouldEqual, service.ErrNotStarted)
		So(svc.Stop(context.Background()), ShouldBeNil)
		So(svc.GetStats()["started"], ShouldEqual, false)
	})
}

func TestServiceTeams(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithLogger(logger.Nop()), service.WithMaxUploadBytes(1024))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		csv := "ID,Team,Project,Members\n1,Escumalha,x,\"Alice\nBob, Carol\"\n2,Pixel,y,Dan\n"

		Convey("When previewing a CSV", func() {
			res, err := svc.PreviewTeams(ctx, "teams.csv", strings.NewReader(csv))

			Convey("Then teams are parsed and nothing is stored", func() {
				So(err, ShouldBeNil)
				So(len(res.Teams), ShouldEqual, 2)
				list, err := svc.ListTeams(ctx, "jam")
				So(err, ShouldBeNil)
				So(list, ShouldBeEmpty)
			})
		})

		Convey("When importing the CSV", func() {
			imp, err := svc.ImportTeams(ctx, "jam", "teams.csv", strings.NewReader(csv))
			So(err, ShouldBeNil)
			So(imp.Summary.SuccessfullyImported, ShouldEqual, 2)

			Convey("Then a raffle wheel has one uniform entry per team", func() {
				doc, err := svc.RaffleWheel(ctx, "jam")
				So(err, ShouldBeNil)
				So(doc.WheelConfig.Title, ShouldEqual, service.RaffleTitle)
				So(doc.WheelConfig.Entries, ShouldResemble, []wheel.Entry{
					{Text: "Escumalha", Weight: 1, Enabled: true},
					{Text: "Pixel", Weight: 1, Enabled: true},
				})

				stored, err := svc.LoadWheel(ctx, "jam", wheel.KindRaffle)
				So(err, ShouldBeNil)
				So(stored.WheelConfig, ShouldResemble, doc.WheelConfig)
			})

			Convey("And importing again reports the duplicates", func() {
				again, err := svc.ImportTeams(ctx, "jam", "teams.csv", strings.NewReader(csv))
				So(err, ShouldBeNil)
				So(again.Summary.Failed, ShouldEqual, 2)
			})
		})

		Convey("When the upload is not a .csv file", func() {
			_, err := svc.PreviewTeams(ctx, "teams.xlsx", strings.NewReader(csv))
			So(errors.Is(err, teams.ErrNotCSV), ShouldBeTrue)
			_, err = svc.ImportTeams(ctx, "jam", "teams", strings.NewReader(csv))
			So(errors.Is(err, teams.ErrNotCSV), ShouldBeTrue)
			list, _ := svc.ListTeams(ctx, "jam")
			So(list, ShouldBeEmpty)
			_, err = svc.PreviewTeams(ctx, "TEAMS.CSV", strings.NewReader(csv))
			So(err, ShouldBeNil)
		})

		Convey("When the upload is too large", func() {
			_, err := svc.PreviewTeams(ctx, "teams.csv", strings.NewReader(strings.Repeat("x", 2048)))
			So(errors.Is(err, teams.ErrFileTooLarge), ShouldBeTrue)
		})

		Convey("When the jam has no teams", func() {
			_, err := svc.RaffleWheel(ctx, "empty")
			So(err, ShouldEqual, service.ErrNoTeams)
		})
	})
}

func TestServiceRaffleKeepsTheme(t *testing.T) {
	Convey("Given a jam whose theme wheel has already picked a theme", t, func() {
		ctx := context.Background()
		spinClock, retryClock := &clock{}, &clock{}
		svc := service.New(
			service.WithLogger(logger.Nop()),
			service.WithSpinnerOptions(
				wheel.WithScheduler(spinClock.wheel),
				wheel.WithRandomSource(wheel.NewSeededRNG(9)),
			),
			service.WithRetryOptions(
				retry.WithScheduler(retryClock.retry),
				retry.WithJitter(func() time.Duration { return 0 }),
			),
		)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		_, err := svc.SaveWheel(ctx, "jam", wheel.KindTheme, themes())
		So(err, ShouldBeNil)
		themeSpin, err := svc.Spin(ctx, "jam", wheel.KindTheme)
		So(err, ShouldBeNil)
		spinClock.fire(0)
		retryClock.fire(0)

		before, err := svc.LoadWheel(ctx, "jam", wheel.KindTheme)
		So(err, ShouldBeNil)
		So(*before.Theme, ShouldEqual, themeSpin.Winner.Text)

		csv := "ID,Team,Project,Members\n1,Escumalha,x,Alice\n2,Pixel,y,Dan\n"
		_, err = svc.ImportTeams(ctx, "jam", "teams.csv", strings.NewReader(csv))
		So(err, ShouldBeNil)

		Convey("When the raffle wheel is built and spun to completion", func() {
			_, err := svc.RaffleWheel(ctx, "jam")
			So(err, ShouldBeNil)
			res, err := svc.Spin(ctx, "jam", wheel.KindRaffle)
			So(err, ShouldBeNil)

			Convey("Then the theme wheel can still spin alongside it", func() {
				view, err := svc.SpinState(ctx, "jam", wheel.KindTheme)
				So(err, ShouldBeNil)
				So(view.CanSpin, ShouldBeTrue)
			})

			spinClock.fire(1)
			So(retryClock.count(), ShouldEqual, 2)
			retryClock.fire(1)

			Convey("Then the raffle records its winner without a theme", func() {
				raffle, err := svc.LoadWheel(ctx, "jam", wheel.KindRaffle)
				So(err, ShouldBeNil)
				So(raffle.LastWinner, ShouldNotBeNil)
				So(raffle.LastWinner.Text, ShouldEqual, res.Winner.Text)
				So(raffle.Theme, ShouldBeNil)
			})

			Convey("And the theme and its configuration are unchanged", func() {
				after, err := svc.LoadWheel(ctx, "jam", wheel.KindTheme)
				So(err, ShouldBeNil)
				So(after, ShouldResemble, before)
				So(after.WheelConfig, ShouldResemble, themes())
			})
		})
	})
}
