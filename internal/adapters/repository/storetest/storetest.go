// Package storetest holds behaviour checks every repository.Store must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/okian/jamwheel/internal/adapters/repository"
	"github.com/okian/jamwheel/internal/domain/teams"
	"github.com/okian/jamwheel/internal/domain/wheel"
	. "github.com/smartystreets/goconvey/convey"
)

// Run exercises a fresh store from open for each scenario.
func Run(t *testing.T, open func(t *testing.T) repository.Store) {
	t.Helper()
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := open(t)
		Reset(func() { _ = s.Close() })

		Convey("When reading a wheel that was never saved", func() {
			_, err := s.GetWheel(ctx, "jam-1", wheel.KindTheme)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the wheel kind is unknown", func() {
			_, err := s.GetWheel(ctx, "jam-1", wheel.Kind("bonus"))
			So(errors.Is(err, wheel.ErrUnknownKind), ShouldBeTrue)
			So(errors.Is(s.PutWheel(ctx, "jam-1", wheel.Kind(""), wheel.Document{}), wheel.ErrUnknownKind), ShouldBeTrue)
		})

		Convey("When the jam id is empty", func() {
			So(errors.Is(s.PutWheel(ctx, "", wheel.KindTheme, wheel.Document{}), repository.ErrInvalidJamID), ShouldBeTrue)
			_, err := s.ListTeams(ctx, "")
			So(errors.Is(err, repository.ErrInvalidJamID), ShouldBeTrue)
		})

		Convey("When saving a wheel document", func() {
			theme := "Robots"
			doc := wheel.Document{
				Theme: &theme,
				WheelConfig: wheel.Configuration{
					Title:   "Themes",
					Entries: []wheel.Entry{{Text: "Robots", Weight: 2, Enabled: true, Color: "#ff0000"}},
				},
				LastWinner: &wheel.Entry{Text: "Robots", Weight: 2, Enabled: true},
			}
			So(s.PutWheel(ctx, "jam-1", wheel.KindTheme, doc), ShouldBeNil)

			Convey("Then it reads back unchanged", func() {
				got, err := s.GetWheel(ctx, "jam-1", wheel.KindTheme)
				So(err, ShouldBeNil)
				So(got, ShouldResemble, doc)
			})

			Convey("And saving again replaces it", func() {
				doc.WheelConfig.Title = "Renamed"
				doc.LastWinner = nil
				So(s.PutWheel(ctx, "jam-1", wheel.KindTheme, doc), ShouldBeNil)
				got, err := s.GetWheel(ctx, "jam-1", wheel.KindTheme)
				So(err, ShouldBeNil)
				So(got.WheelConfig.Title, ShouldEqual, "Renamed")
				So(got.LastWinner, ShouldBeNil)
			})

			Convey("And other jams are unaffected", func() {
				_, err := s.GetWheel(ctx, "jam-2", wheel.KindTheme)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("And the jam's other wheel kinds are separate documents", func() {
				_, err := s.GetWheel(ctx, "jam-1", wheel.KindRaffle)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

				raffle := wheel.Document{WheelConfig: wheel.Configuration{
					Title:   "Raffle",
					Entries: []wheel.Entry{{Text: "Escumalha", Weight: 1, Enabled: true}},
				}}
				So(s.PutWheel(ctx, "jam-1", wheel.KindRaffle, raffle), ShouldBeNil)

				got, err := s.GetWheel(ctx, "jam-1", wheel.KindRaffle)
				So(err, ShouldBeNil)
				So(got, ShouldResemble, raffle)
				theme, err := s.GetWheel(ctx, "jam-1", wheel.KindTheme)
				So(err, ShouldBeNil)
				So(theme, ShouldResemble, doc)
			})
		})

		Convey("When importing teams", func() {
			full := make([]string, teams.MaxMembers)
			for i := range full {
				full[i] = fmt.Sprintf("p%d", i)
			}
			summary, err := s.ImportTeams(ctx, "jam-1", []teams.Team{
				{Name: "Escumalha", Members: []string{"Alice", "Bob"}},
				{Name: "Crowd", Members: full},
			})
			So(err, ShouldBeNil)

			Convey("Then each team is stored with an id", func() {
				So(summary.SuccessfullyImported, ShouldEqual, 2)
				So(summary.Failed, ShouldEqual, 0)
				So(len(summary.Results), ShouldEqual, 2)
				So(summary.Results[0].TeamID, ShouldNotBeEmpty)

				list, err := s.ListTeams(ctx, "jam-1")
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 2)
				So(list[0].Name, ShouldEqual, "Escumalha")
				So(list[0].Members, ShouldResemble, []string{"Alice", "Bob"})
				So(list[0].ID, ShouldEqual, summary.Results[0].TeamID)
				So(list[0].JamID, ShouldEqual, "jam-1")
			})

			Convey("And a full team gets a warning", func() {
				So(len(summary.Warnings), ShouldEqual, 1)
				So(summary.Warnings[0], ShouldContainSubstring, "Crowd")
			})

			Convey("And importing the same name again fails for that team only", func() {
				again, err := s.ImportTeams(ctx, "jam-1", []teams.Team{
					{Name: "ESCUMALHA", Members: []string{"Eve"}},
					{Name: "Fresh", Members: []string{"Zed"}},
				})
				So(err, ShouldBeNil)
				So(again.SuccessfullyImported, ShouldEqual, 1)
				So(again.Failed, ShouldEqual, 1)
				So(again.Results[0], ShouldResemble, repository.TeamResult{Name: "ESCUMALHA", Error: repository.ReasonTeamExists})

				list, err := s.ListTeams(ctx, "jam-1")
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 3)
			})

			Convey("And the same name is free in another jam", func() {
				other, err := s.ImportTeams(ctx, "jam-2", []teams.Team{{Name: "Escumalha", Members: []string{"X"}}})
				So(err, ShouldBeNil)
				So(other.SuccessfullyImported, ShouldEqual, 1)
			})
		})

		Convey("When listing a jam with no teams", func() {
			list, err := s.ListTeams(ctx, "jam-9")
			So(err, ShouldBeNil)
			So(list, ShouldBeEmpty)
		})
	})
}
