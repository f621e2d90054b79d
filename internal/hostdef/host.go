// Package hostdef describes candidate remote-compile hosts and loads the
// host list from configuration: a distcc-style static host list rather
// than network discovery.
package hostdef

import "fmt"

// TransportMode selects how a Host is reached.
type TransportMode int

const (
	// ModeTCP dials the host directly over a TCP socket.
	ModeTCP TransportMode = iota
	// ModeTunnel spawns a tunnel command (e.g. ssh) and speaks the
	// protocol over its stdin/stdout pipes.
	ModeTunnel
)

func (m TransportMode) String() string {
	switch m {
	case ModeTCP:
		return "tcp"
	case ModeTunnel:
		return "tunnel"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// PreprocessSite selects which side runs the C preprocessor.
type PreprocessSite int

const (
	// SiteClient means the client produces the .i file and ships it.
	SiteClient PreprocessSite = iota
	// SiteServer means the client ships its file list (see internal/bulk),
	// and the server runs the preprocessor itself.
	SiteServer
)

func (s PreprocessSite) String() string {
	switch s {
	case SiteClient:
		return "client"
	case SiteServer:
		return "server"
	default:
		return fmt.Sprintf("site(%d)", int(s))
	}
}

// Host is one candidate remote build server. It is immutable for the
// duration of a single dispatch call.
type Host struct {
	Name string `yaml:"name"`

	Mode          TransportMode `yaml:"-"`
	ModeName      string        `yaml:"mode"` // "tcp" | "tunnel", parsed into Mode
	Hostname      string        `yaml:"hostname"`
	Port          int           `yaml:"port"`
	TunnelUser    string        `yaml:"tunnel_user"`
	TunnelCommand string        `yaml:"tunnel_command"`

	PreprocessSite   PreprocessSite `yaml:"-"`
	PreprocessorName string         `yaml:"preprocess_site"` // "client" | "server"

	ProtocolVersion int  `yaml:"protocol_version"`
	Compress        bool `yaml:"compress"`
	Authenticate    bool `yaml:"authenticate"`
}

// Resolve parses ModeName/PreprocessorName into their typed fields and
// validates the record. Unknown mode strings are a configuration error
// (returned), distinct from an impossible in-memory Mode value, which is
// a programmer error handled fatally by AssertKnownMode instead — that
// path is only reachable if code constructs a Host by hand with a bogus
// numeric Mode, which Resolve cannot see.
func (h *Host) Resolve() error {
	switch h.ModeName {
	case "", "tcp":
		h.Mode = ModeTCP
	case "tunnel":
		h.Mode = ModeTunnel
	default:
		return fmt.Errorf("hostdef: unknown transport mode %q for host %q", h.ModeName, h.Name)
	}

	switch h.PreprocessorName {
	case "", "client":
		h.PreprocessSite = SiteClient
	case "server":
		h.PreprocessSite = SiteServer
	default:
		return fmt.Errorf("hostdef: unknown preprocess site %q for host %q", h.PreprocessorName, h.Name)
	}

	if h.Mode == ModeTCP && h.Port == 0 {
		return fmt.Errorf("hostdef: host %q needs a port for tcp mode", h.Name)
	}
	if h.Mode == ModeTunnel && h.TunnelCommand == "" {
		return fmt.Errorf("hostdef: host %q needs tunnel_command for tunnel mode", h.Name)
	}
	if h.ProtocolVersion == 0 {
		h.ProtocolVersion = 1
	}
	return nil
}

// AssertKnownMode panics if Mode holds a value Resolve never produces.
// Any other mode is a programmer error, reachable only through direct
// construction of a Host that skips Resolve.
func (h *Host) AssertKnownMode() {
	if h.Mode != ModeTCP && h.Mode != ModeTunnel {
		panic(fmt.Sprintf("hostdef: impossible host mode %d", int(h.Mode)))
	}
}
