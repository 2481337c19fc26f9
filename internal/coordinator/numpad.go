package coordinator

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Iron-Ham/sipchat/internal/chat"
	"github.com/Iron-Ham/sipchat/internal/errors"
)

const numpadLayout = `+------+-----+------+
|  1   |  2  |  3   |
|      | ABC | DEF  |
+------+-----+------+
|  4   |  5  |  6   |
| GHI  | JKL | MNO  |
+------+-----+------+
|  7   |  8  |  9   |
| PQRS | TUV | WXYZ |
+------+-----+------+
|  *   |  0  |  #   |
+-------------------+`

const numpadPrompt = "> "

// letterDigits maps phone keypad letters to their digit.
var letterDigits = func() map[rune]rune {
	m := make(map[rune]rune)
	for digit, letters := range map[rune]string{
		'2': "ABC", '3': "DEF", '4': "GHI", '5': "JKL",
		'6': "MNO", '7': "PQRS", '8': "TUV", '9': "WXYZ",
	} {
		for _, l := range letters {
			m[l] = digit
		}
	}
	return m
}()

// numpad is the DTMF input mode. While it is active every key is a digit
// for the session it was entered on.
type numpad struct {
	session *chat.Session
	prompt  string
}

func (c *Coordinator) enterNumpad() error {
	cs, err := c.current("")
	if err != nil {
		return err
	}
	if !cs.HasAudio() {
		return errors.UserErrorf("Session does not have audio stream to send DTMF over")
	}

	c.console.Println(numpadLayout)
	c.numpad = &numpad{session: cs, prompt: numpadPrompt}
	c.console.SetKeyMode(true)
	c.console.SetPrompt(c.numpad.prompt)
	return nil
}

func (c *Coordinator) leaveNumpad() {
	c.numpad = nil
	c.console.SetKeyMode(false)
	c.updatePrompt()
}

func isNumpadExit(key rune) bool {
	switch key {
	case KeyNumpad, 0x1b, 0x04, '\n', '\r':
		return true
	}
	return false
}

func (c *Coordinator) numpadKey(key rune) {
	if isNumpadExit(key) {
		c.leaveNumpad()
		return
	}

	digit := unicode.ToUpper(key)
	if d, ok := letterDigits[digit]; ok {
		digit = d
	}
	if !strings.ContainsRune("0123456789*#", digit) {
		c.console.Println(fmt.Sprintf("Invalid digit: %q", digit))
		return
	}

	c.numpad.prompt += string(digit)
	c.console.SetPrompt(c.numpad.prompt)
	c.report(c.engine.SendDTMF(c.numpad.session.ID(), digit))
}
