package stats

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/szibis/lf-telemetry/internal/buildinfo"
	"github.com/szibis/lf-telemetry/internal/command"
	"github.com/szibis/lf-telemetry/internal/counter"
	"github.com/szibis/lf-telemetry/internal/peer"
)

// Command names.
const (
	CommandPrefix    = "/lf"
	CmdVersion       = CommandPrefix + "/version"
	CmdWorkerStats   = CommandPrefix + "/worker/stats"
	CmdPeerStats     = CommandPrefix + "/peer/stats"
	CmdPeerStatsList = CommandPrefix + "/peer/stats/list"
)

// versionAllMaxLen bounds the escaped extended version string.
const versionAllMaxLen = 1024

// RegisterCommands registers the statistics commands on reg. Handlers are
// bound to c and info; they never mutate c.
func RegisterCommands(reg *command.Registry, c *Context, info buildinfo.Info) error {
	h := &handlers{c: c, info: info}
	cmds := []struct {
		name string
		help string
		fn   command.Handler
	}{
		{CmdVersion, "Prints Version. Parameters: None for simple version or 'all' for extended version information", h.version},
		{CmdWorkerStats, "Returns worker statistics. Parameters: None (aggregated over all workers) or worker ID", h.workerStats},
		{CmdPeerStats, "Returns peer statistics. Parameters: None (aggregated over all peers) or <ISD-AS>,<DRKey protocol>", h.peerStats},
		{CmdPeerStatsList, "Returns the list of tracked peers as <ISD-AS>, <DRKey protocol>. The output can be used as parameters for " + CmdPeerStats, h.peerList},
	}
	for _, cmd := range cmds {
		if err := reg.Register(cmd.name, cmd.help, cmd.fn); err != nil {
			return fmt.Errorf("register %s: %w", cmd.name, err)
		}
	}
	return nil
}

type handlers struct {
	c    *Context
	info buildinfo.Info
}

func exportDict(d *command.Data, s *counter.Schema, v counter.Values) error {
	d.StartDict()
	for _, nv := range s.Export(v) {
		if err := d.AddDictUint(nv.Name, nv.Value); err != nil {
			return err
		}
	}
	return nil
}

func (h *handlers) version(_, params string, d *command.Data) error {
	d.StartDict()
	// The numeric major version lets scrapers that only keep numbers still
	// see the command.
	if err := d.AddDictInt("version major", int64(h.info.Major)); err != nil {
		return err
	}
	switch params {
	case "":
		for _, kv := range [][2]string{
			{"version", h.info.Version},
			{"git", h.info.Git},
			{"worker", h.info.Worker},
			{"drkey_fetcher", h.info.DRKeyFetcher},
			{"cbc_mac", h.info.CBCMAC},
		} {
			if err := d.AddDictString(kv[0], kv[1]); err != nil {
				return err
			}
		}
		return d.AddDictInt("log_dp_level", int64(h.info.LogDPLevel))
	case "all":
		escaped, err := command.EscapeJSON(h.info.All(), versionAllMaxLen)
		if err != nil {
			return err
		}
		return d.AddDictString("all", escaped)
	default:
		return fmt.Errorf("%w: %q (expected none or \"all\")", command.ErrInvalidParams, params)
	}
}

func (h *handlers) workerStats(_, params string, d *command.Data) error {
	var (
		v   counter.Values
		err error
	)
	if params == "" {
		v, err = h.c.AggregateWorker()
	} else {
		id, perr := strconv.Atoi(strings.TrimSpace(params))
		if perr != nil {
			return fmt.Errorf("%w: worker id %q", command.ErrInvalidParams, params)
		}
		v, err = h.c.WorkerSnapshot(id)
	}
	if err != nil {
		return err
	}
	return exportDict(d, counter.WorkerSchema, v)
}

func (h *handlers) peerStats(_, params string, d *command.Data) error {
	var (
		v   counter.Values
		err error
	)
	if params == "" {
		v, err = h.c.AggregatePeers()
	} else {
		k, perr := peer.ParseKey(params)
		if perr != nil {
			return fmt.Errorf("%w: %w", command.ErrInvalidParams, perr)
		}
		v, err = h.c.PeerSnapshot(k)
	}
	if err != nil {
		return err
	}
	return exportDict(d, counter.PeerSchema, v)
}

func (h *handlers) peerList(_, _ string, d *command.Data) error {
	keys, err := h.c.ListPeers()
	if err != nil {
		return err
	}
	d.StartArray()
	for _, k := range keys {
		if err := d.AddArrayString(k.String()); err != nil {
			return err
		}
	}
	return nil
}
