package cli

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/chronsync/internal/config"
	"github.com/matheus3301/chronsync/internal/profile"
	qrcode "github.com/skip2/go-qrcode"
)

const pairScheme = "chronsync"

var ErrBadPairURI = errors.New("invalid pairing uri")

// BuildPairURI encodes a hub address and client id as chronsync://pair?remote=..&client=..
func BuildPairURI(remote, clientID string) string {
	q := url.Values{}
	q.Set("remote", remote)
	q.Set("client", clientID)
	u := url.URL{Scheme: pairScheme, Host: "pair", RawQuery: q.Encode()}
	return u.String()
}

// ParsePairURI is the inverse of BuildPairURI.
func ParsePairURI(raw string) (remote, clientID string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrBadPairURI, err)
	}
	if u.Scheme != pairScheme || u.Host != "pair" {
		return "", "", fmt.Errorf("%w: expected %s://pair", ErrBadPairURI, pairScheme)
	}
	q := u.Query()
	remote, clientID = q.Get("remote"), q.Get("client")
	if remote == "" || clientID == "" {
		return "", "", fmt.Errorf("%w: remote and client are required", ErrBadPairURI)
	}
	if _, _, err := net.SplitHostPort(remote); err != nil {
		return "", "", fmt.Errorf("%w: remote %q: %v", ErrBadPairURI, remote, err)
	}
	return remote, clientID, nil
}

type pairJSON struct {
	URI      string `json:"uri"`
	Remote   string `json:"remote"`
	ClientID string `json:"clientId"`
	Config   string `json:"config"`
}

// Execute implements the go-flags Commander interface for PairCommand.
func (c *PairCommand) Execute(_ []string) error {
	name, err := c.base.profileName()
	if err != nil {
		return err
	}
	if err := profile.EnsureDir(name); err != nil {
		return err
	}
	path := profile.ConfigPath(name)
	cfg, err := config.LoadProfile(path)
	if err != nil {
		return err
	}
	if c.Accept != "" {
		return c.accept(cfg, path)
	}
	return c.issue(cfg, path)
}

// accept stores the hub address and client id on a syncing device.
func (c *PairCommand) accept(cfg *config.Profile, path string) error {
	remote, clientID, err := ParsePairURI(c.Accept)
	if err != nil {
		return err
	}
	cfg.Sync.Remote = remote
	cfg.Sync.ClientID = clientID
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	if c.base.jsonOut() {
		return c.base.outputJSON(pairJSON{URI: c.Accept, Remote: remote, ClientID: clientID, Config: path})
	}
	c.base.printf("Paired with %s as %s.\n", remote, clientID)
	c.base.printf("Wrote %s; restart chronsyncd to apply.\n", path)
	return nil
}

// issue allow-lists a client id on the hub and prints the URI for it.
func (c *PairCommand) issue(cfg *config.Profile, path string) error {
	remote := c.Remote
	if remote == "" {
		remote = cfg.Server.Listen
	}
	if err := dialable(remote); err != nil {
		return fmt.Errorf("--remote is required: %w", err)
	}

	clientID := c.Client
	if clientID == "" {
		clientID = uuid.NewString()
	}
	if !slices.Contains(cfg.Server.ClientIDs, clientID) {
		cfg.Server.ClientIDs = append(cfg.Server.ClientIDs, clientID)
		if err := config.Save(path, cfg); err != nil {
			return err
		}
	}

	uri := BuildPairURI(remote, clientID)
	if c.base.jsonOut() {
		return c.base.outputJSON(pairJSON{URI: uri, Remote: remote, ClientID: clientID, Config: path})
	}
	c.base.printf("Pairing URI:\n  %s\n", uri)
	if !c.NoQR {
		c.base.printf("\n%s\n", renderQR(uri))
	}
	c.base.printf("On the other device run:\n  chronsyncctl pair --accept '%s'\n", uri)
	c.base.printf("Client id added to server.client_ids in %s; restart chronsyncd to apply.\n", path)
	return nil
}

// dialable rejects empty addresses and wildcard listen hosts.
func dialable(addr string) error {
	if addr == "" {
		return errors.New("no hub address configured (server.listen is empty)")
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("address %q: %w", addr, err)
	}
	if host == "" {
		return fmt.Errorf("address %q has no host", addr)
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		return fmt.Errorf("address %q is a wildcard listen address", addr)
	}
	return nil
}

// renderQR converts a string to a compact QR code using Unicode half-block
// characters. Two bitmap rows become one terminal line.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}

	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		sb.WriteString("  ")
		for x := 0; x < cols; x++ {
			top := bitmap[y][x]
			bot := false
			if y+1 < rows {
				bot = bitmap[y+1][x]
			}
			switch {
			case top && bot:
				sb.WriteRune('\u2588')
			case top && !bot:
				sb.WriteRune('\u2580')
			case !top && bot:
				sb.WriteRune('\u2584')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
