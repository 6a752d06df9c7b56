package teams_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/okian/jamwheel/internal/domain/teams"
	"github.com/okian/jamwheel/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const header = "ID,Team,Project,Members"

func TestSplitIntoRows(t *testing.T) {
	Convey("Given CSV text with a quoted multi-line cell", t, func() {
		text := header + "\r\n1,Escumalha,x,\"Alice\nBob, Carol\"\n\n   \n2,Other,y,Dan\n"

		Convey("When splitting into rows", func() {
			rows := teams.SplitIntoRows(text)

			Convey("Then newlines inside quotes do not end a row", func() {
				So(rows, ShouldResemble, []string{
					header,
					"1,Escumalha,x,\"Alice\nBob, Carol\"",
					"2,Other,y,Dan",
				})
			})
		})

		Convey("When the text is empty", func() {
			So(teams.SplitIntoRows(""), ShouldBeEmpty)
		})
	})
}

func TestSplitRowIntoFields(t *testing.T) {
	Convey("Given a row with quoted fields", t, func() {
		So(teams.SplitRowIntoFields(` 1 , "Say ""hi""" ,"a,b",`), ShouldResemble,
			[]string{"1", `Say "hi"`, "a,b", ""})
		So(teams.SplitRowIntoFields("solo"), ShouldResemble, []string{"solo"})
	})
}

func TestParse(t *testing.T) {
	ctx := context.Background()
	p := teams.NewParser(teams.WithLogger(logger.Nop()))

	Convey("Given a CSV with a multi-line members cell", t, func() {
		text := header + "\n1,Escumalha,x,\"Alice\nBob, Carol\"\n"

		Convey("When parsing", func() {
			res, err := p.Parse(ctx, text)

			Convey("Then one team with three members is produced", func() {
				So(err, ShouldBeNil)
				So(res.Teams, ShouldResemble, []teams.Team{
					{Name: "Escumalha", Members: []string{"Alice", "Bob", "Carol"}},
				})
				So(res.RowsRead, ShouldEqual, 1)
				So(res.Skipped, ShouldBeEmpty)
			})
		})
	})

	Convey("Given rows with unsafe and duplicate names", t, func() {
		text := strings.Join([]string{
			header,
			"1,Foo<script>,x,Alice",
			"2,TeamX,x,Bob",
			"3,teamx,x,Carol",
			"4,,x,Dan",
			"5,Lonely,x,",
		}, "\n")

		Convey("When parsing", func() {
			res, err := p.Parse(ctx, text)

			Convey("Then only the first TeamX survives and each skip is reported", func() {
				So(err, ShouldBeNil)
				So(res.Teams, ShouldResemble, []teams.Team{{Name: "TeamX", Members: []string{"Bob"}}})
				So(res.Skipped, ShouldResemble, []teams.Skipped{
					{Row: 2, Reason: teams.ReasonUnsafeName, Name: "Foo<script>"},
					{Row: 4, Reason: teams.ReasonDuplicateName, Name: "teamx"},
					{Row: 5, Reason: teams.ReasonMissingName},
					{Row: 6, Reason: teams.ReasonNoMembers, Name: "Lonely"},
				})
			})
		})
	})

	Convey("Given a very long team name", t, func() {
		long := strings.Repeat("n", 120)
		res, err := p.Parse(ctx, header+"\n1,"+long+",x,Ann")

		Convey("Then it is truncated to 100 characters ending in an ellipsis", func() {
			So(err, ShouldBeNil)
			name := res.Teams[0].Name
			So(len(name), ShouldEqual, teams.MaxNameLength)
			So(strings.HasSuffix(name, "..."), ShouldBeTrue)
		})
	})

	Convey("Given a members cell with bad and too many members", t, func() {
		var members []string
		for i := 0; i < 25; i++ {
			members = append(members, fmt.Sprintf("m%d", i))
		}
		members = append([]string{"<b>", strings.Repeat("z", 151)}, members...)
		cell := `"` + strings.Join(members, ",") + `"`
		res, err := p.Parse(ctx, header+"\n1,Big,x,"+cell)

		Convey("Then bad members are dropped and the list is capped at 20", func() {
			So(err, ShouldBeNil)
			got := res.Teams[0].Members
			So(len(got), ShouldEqual, teams.MaxMembers)
			So(got[0], ShouldEqual, "m0")
			So(got[19], ShouldEqual, "m19")
			So(res.DroppedMembers, ShouldEqual, 7)
		})
	})

	Convey("Given a file with only a header", t, func() {
		_, err := p.Parse(ctx, header+"\n")
		So(errors.Is(err, teams.ErrEmptyFile), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "no data rows")
	})

	Convey("Given a file where every row is bad", t, func() {
		res, err := teams.Parse(header + "\n1,<x>,p,A\n2,Ok,p,\n")
		So(errors.Is(err, teams.ErrNoValidTeams), ShouldBeTrue)
		So(len(res.Skipped), ShouldEqual, 2)
	})
}

func TestReadUpload(t *testing.T) {
	Convey("Given an upload reader", t, func() {
		Convey("When it is within the limit and starts with a BOM", func() {
			text, err := teams.ReadUpload(strings.NewReader("\xef\xbb\xbfID,Team"), 64)
			So(err, ShouldBeNil)
			So(text, ShouldEqual, "ID,Team")
		})

		Convey("When it exceeds the limit", func() {
			_, err := teams.ReadUpload(strings.NewReader(strings.Repeat("a", 65)), 64)
			So(errors.Is(err, teams.ErrFileTooLarge), ShouldBeTrue)
		})

		Convey("When it is not UTF-8", func() {
			_, err := teams.ReadUpload(strings.NewReader("\xff\xfe"), 64)
			So(err, ShouldEqual, teams.ErrInvalidEncoding)
		})
	})
}

func TestCheckFileName(t *testing.T) {
	Convey("Given upload file names", t, func() {
		So(teams.CheckFileName("teams.csv"), ShouldBeNil)
		So(teams.CheckFileName("Inscricoes.CSV"), ShouldBeNil)
		So(errors.Is(teams.CheckFileName("teams.xlsx"), teams.ErrNotCSV), ShouldBeTrue)
		So(errors.Is(teams.CheckFileName("teams.csv.exe"), teams.ErrNotCSV), ShouldBeTrue)
		So(errors.Is(teams.CheckFileName(""), teams.ErrNotCSV), ShouldBeTrue)
	})
}
