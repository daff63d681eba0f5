package core

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestClassify(t *testing.T) {
	Convey("when Classify is called", t, func() {
		Convey("with a plain response", func() {
			v, err := Classify("ok")

			Convey("the text is returned verbatim", func() {
				So(err, ShouldBeNil)
				So(v, ShouldEqual, "ok")
			})
		})

		Convey("with an empty response", func() {
			v, err := Classify("")

			Convey("it is a successful result", func() {
				So(err, ShouldBeNil)
				So(v, ShouldBeEmpty)
			})
		})

		cases := []struct {
			text string
			code ErrorCode
		}{
			{"error: not authenticated: login first", NotAuthenticated},
			{"Restricted: cannot do X", CommandRestricted},
			{"Failed to process command 'kick'", CommandFailed},
			{"error: you are not authorised to use the command ban", CommandUnauthorized},
			{"rcon: unknown command: foo", CommandUnknown},
		}
		for _, tc := range cases {
			tc := tc
			Convey("with response "+tc.text, func() {
				v, err := Classify(tc.text)

				Convey("it is classified as "+tc.code.String(), func() {
					So(v, ShouldBeEmpty)
					So(CodeOf(err), ShouldEqual, tc.code)
					So(err.(*Error).Message, ShouldEqual, tc.text)
				})
			})
		}

		Convey("with an error pattern that is not a prefix", func() {
			v, err := Classify("note: Restricted: is only a prefix rule")

			Convey("the text is a successful result", func() {
				So(err, ShouldBeNil)
				So(v, ShouldStartWith, "note:")
			})
		})

		Convey("with a differently cased pattern", func() {
			_, err := Classify("restricted: lower case")

			Convey("matching is case sensitive", func() {
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestIsAuthSuccess(t *testing.T) {
	Convey("when the handshake reply is checked", t, func() {
		So(IsAuthSuccess("Authentication success"), ShouldBeTrue)
		So(IsAuthSuccess("Authentication successful, welcome"), ShouldBeTrue)
		So(IsAuthSuccess("Authentication failed"), ShouldBeFalse)
		So(IsAuthSuccess(" Authentication success"), ShouldBeFalse)
		So(IsAuthSuccess(""), ShouldBeFalse)
	})
}
