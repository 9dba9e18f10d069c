package cardinality

import (
	"fmt"

	"github.com/szibis/lf-telemetry/internal/command"
)

// CmdUntrackedPeers reports the untracked peer counts.
const CmdUntrackedPeers = "/lf/peer/untracked"

// RegisterCommands registers CmdUntrackedPeers on reg.
func RegisterCommands(reg *command.Registry, u *Untracked) error {
	err := reg.Register(CmdUntrackedPeers, "Returns the number of distinct untracked peers in the open and the last window. Takes no parameters",
		func(_, params string, d *command.Data) error {
			if params != "" {
				return fmt.Errorf("unexpected parameters %q", params)
			}
			d.StartDict()
			if err := d.AddDictString("mode", u.Mode().String()); err != nil {
				return err
			}
			if err := d.AddDictInt("window seconds", int64(u.Window().Seconds())); err != nil {
				return err
			}
			if err := d.AddDictInt("current", u.Current()); err != nil {
				return err
			}
			return d.AddDictInt("last window", u.Previous())
		})
	if err != nil {
		return fmt.Errorf("register %s: %w", CmdUntrackedPeers, err)
	}
	return nil
}
