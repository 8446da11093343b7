package banner

import (
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
)

// Version is the netlynx release
const Version = "0.1.0"

func Print() {
	ptermLogo, _ := pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithRGB("Net", pterm.NewRGB(66, 133, 244)),
		putils.LettersFromStringWithRGB("Lynx", pterm.NewRGB(0, 0, 0))).
		Srender()

	pterm.DefaultCenter.Print(ptermLogo)

	pterm.DefaultCenter.Print(
		pterm.DefaultHeader.
			WithFullWidth().
			WithBackgroundStyle(pterm.NewStyle(pterm.BgLightBlue)).
			WithMargin(5).
			Sprint(pterm.White("NetLynx - NetLog source classifier")),
	)

	pterm.Info.Println(
		"Groups browser NetLog events by source and tells you what each one was doing." +
			"\nTail captures as they are written, stream them live or load complete exports." +
			"\nVersion " + Version + ".",
	)
}
