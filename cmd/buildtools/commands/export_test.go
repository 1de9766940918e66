package commands

import "io"

// SetArgs sets the arguments of the root command.
func (a *App) SetArgs(args ...string) {
	a.cmd.SetArgs(args)
}

// SetIO sets the standard streams of the root command.
func (a *App) SetIO(in io.Reader, out io.Writer) {
	a.cmd.SetIn(in)
	a.cmd.SetOut(out)
	a.cmd.SetErr(io.Discard)
}
