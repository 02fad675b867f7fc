// Package mcpmerge collects the mcp/servers.toml of every resolved
// package, namespaces each server's id, and gates it through the trust
// package before emitting a target's merged mcp.json (spec §4.8 "MCP
// merger & trust gate"), grounded on
// original_source/botpack/mcp.py's parse_servers_toml/build_mcp_servers.
package mcpmerge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/botpack/botpack/internal/fsutil"
	"github.com/botpack/botpack/internal/trust"
)

const serversSchemaVersion = 1

// rawServersFile mirrors servers.toml's shape: `version = 1` plus zero or
// more `[[server]]` tables.
type rawServersFile struct {
	Version int         `toml:"version"`
	Server  []rawServer `toml:"server"`
}

type rawServer struct {
	ID      string            `toml:"id"`
	Name    string            `toml:"name"`
	Command string            `toml:"command"`
	Args    []string          `toml:"args"`
	URL     string            `toml:"url"`
	Env     map[string]string `toml:"env"`
}

// Server is one namespaced, parsed MCP server definition.
type Server struct {
	Fqid      string
	Name      string
	Transport string // "stdio" or "http"
	Command   string
	Args      []string
	URL       string
	Env       map[string]string
	// PkgKey and Integrity identify the owning package, needed for the
	// trust lookup (spec §4.8 precedence steps 1-2).
	PkgKey    string
	Integrity string
}

// RequiresExec reports whether materializing this server needs exec
// trust (spec §4.8: "A server that specifies a local command/args
// implicitly requires exec").
func (s Server) RequiresExec() bool { return s.Command != "" }

// ParseServersToml parses one package's mcp/servers.toml into its
// declared servers, namespacing each fqid as "<pkgName>/<serverID>".
// pkgName is the bare package name (not name@version) per spec §4.8.
func ParseServersToml(path, pkgName, pkgKey, integrity string) ([]Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("MCP_READ: %w", err)
	}
	var raw rawServersFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("MCP_PARSE: %s: %w", path, err)
	}
	if raw.Version != serversSchemaVersion {
		return nil, fmt.Errorf("MCP_PARSE: %s: unsupported version %d", path, raw.Version)
	}

	out := make([]Server, 0, len(raw.Server))
	for _, s := range raw.Server {
		if s.ID == "" {
			return nil, fmt.Errorf("MCP_PARSE: %s: server.id is required", path)
		}
		fqid := pkgName + "/" + s.ID
		srv := Server{Fqid: fqid, Name: s.Name, Env: s.Env, PkgKey: pkgKey, Integrity: integrity}
		if s.URL != "" {
			srv.Transport = "http"
			srv.URL = s.URL
		} else {
			if s.Command == "" {
				return nil, fmt.Errorf("MCP_PARSE: %s: server %q must set command or url", path, s.ID)
			}
			srv.Transport = "stdio"
			srv.Command = s.Command
			srv.Args = s.Args
		}
		out = append(out, srv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fqid < out[j].Fqid })
	return out, nil
}

// Merge combines every package's servers into one set, detecting fqid
// collisions (spec §4.8: "Collision on fqid ⇒ sync error").
func Merge(perPackage [][]Server) ([]Server, error) {
	seen := map[string]bool{}
	var merged []Server
	for _, servers := range perPackage {
		for _, s := range servers {
			if seen[s.Fqid] {
				return nil, fmt.Errorf("MCP_COLLISION: duplicate server id %q across packages", s.Fqid)
			}
			seen[s.Fqid] = true
			merged = append(merged, s)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Fqid < merged[j].Fqid })
	return merged, nil
}

// GateResult is the outcome of running trust gating over a merged server
// set: Allowed is what should be materialized, Blocked records what was
// omitted along with why (spec §4.8: "reported as a capability gate").
type GateResult struct {
	Allowed []Server
	Blocked []BlockedServer
}

type BlockedServer struct {
	Server Server
	Reason string
}

// Gate filters servers through the trust file, omitting anything not
// trusted rather than failing the whole merge (spec §4.8: "A denied
// server is omitted from target output").
func Gate(servers []Server, tf trust.File) GateResult {
	var res GateResult
	for _, s := range servers {
		need := trust.Need{Exec: s.RequiresExec(), Mcp: true}
		decision := trust.CheckMcpServer(tf, s.PkgKey, s.Integrity, s.Fqid, need)
		if decision.Allowed {
			res.Allowed = append(res.Allowed, s)
			continue
		}
		res.Blocked = append(res.Blocked, BlockedServer{Server: s, Reason: decision.Reason})
	}
	return res
}

// outputServer is the on-disk shape of one server entry in a target's
// merged mcp.json, mirroring original_source/botpack/mcp.py's
// McpServer.to_dict field omission rules (WriteDocument sorts the keys).
type outputServer struct {
	Name      string            `json:"name"`
	Transport string            `json:"transport"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	URL       string            `json:"url,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Notes     string            `json:"notes,omitempty"`
}

// Document is the full emitted mcp.json shape (spec §4.8: "sorted by
// fqid; formatting is stable ... no timestamps inside content").
type Document struct {
	Schema  string         `json:"$schema"`
	Servers []outputServer `json:"servers"`
}

const schemaURL = "https://botpack.dev/schemas/mcp.json"

// BuildDocument renders the allowed servers (already sorted by fqid) into
// the emitted document shape.
func BuildDocument(servers []Server) Document {
	out := make([]outputServer, 0, len(servers))
	for _, s := range servers {
		out = append(out, outputServer{
			Name: s.Fqid, Transport: s.Transport, Command: s.Command,
			Args: s.Args, URL: s.URL, Env: s.Env, Notes: s.Name,
		})
	}
	return Document{Schema: schemaURL, Servers: out}
}

// WriteDocument renders doc as stable-formatted JSON (fixed indent, object
// keys sorted lexicographically at every level, no HTML escaping, a single
// trailing newline) and writes it atomically, matching internal/lockfile's
// canonical JSON convention: doc is round-tripped through a generic value
// first, since encoding/json sorts map keys but emits struct fields in
// declaration order.
func WriteDocument(path string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("MCP_ENCODE: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("MCP_ENCODE: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("MCP_ENCODE: %w", err)
	}
	return fsutil.AtomicWriteFsync(path, buf.Bytes(), 0o644)
}
