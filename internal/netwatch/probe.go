package netwatch

import (
	"context"
	"log/slog"
	"net"
	"sort"
	"strings"

	"github.com/vishvananda/netlink"

	serr "shaperd/internal/errors"
)

// detectDefaultInterface finds the current default-route interface. Netlink
// is the primary source; parsing `ip route show` is the fallback. An empty
// name with a nil error means no route exists right now, which is a valid
// observation, not a probe failure.
func (w *Watchdog) detectDefaultInterface(ctx context.Context) (string, error) {
	if name, err := w.defaultInterfaceFromNetlink(); err == nil {
		return name, nil
	} else if w.logger != nil {
		w.logger.Debug("netlink route detection failed", slog.String("error", err.Error()))
	}
	return w.defaultInterfaceFromCommand(ctx)
}

func (w *Watchdog) defaultInterfaceFromNetlink() (string, error) {
	routes, err := w.nl.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return "", serr.Wrap(serr.KindProbeUnavailable, err, "route_list")
	}

	for _, route := range routes {
		if route.Dst != nil || route.LinkIndex <= 0 {
			continue
		}
		attrs, err := safeGetLinkAttrs(w.nl, route.LinkIndex)
		if err != nil {
			continue
		}
		if attrs.Name != "" {
			return attrs.Name, nil
		}
	}

	// No default route; fall back to the first usable link.
	return w.firstUsableLink()
}

func (w *Watchdog) defaultInterfaceFromCommand(ctx context.Context) (string, error) {
	output, err := w.exec.Run(ctx, "ip", []string{"route", "show"})
	if err != nil {
		return "", serr.Wrap(serr.KindProbeUnavailable, err, "route_probe",
			serr.ErrorContext{Command: "ip route show"})
	}

	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, "default ") {
			continue
		}
		if name, ok := extractDevice(line); ok && name != "" {
			return name, nil
		}
	}

	return w.firstUsableLink()
}

func (w *Watchdog) firstUsableLink() (string, error) {
	names, err := w.usableLinkNames()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}

func (w *Watchdog) usableLinkNames() ([]string, error) {
	links, err := w.nl.LinkList()
	if err != nil {
		return nil, serr.Wrap(serr.KindProbeUnavailable, err, "link_list")
	}

	var names []string
	for _, link := range links {
		attrs := link.Attrs()
		if attrs == nil || attrs.Name == "" {
			continue
		}
		if isVirtualName(attrs.Name) {
			continue
		}
		names = append(names, attrs.Name)
	}
	sort.Strings(names)
	return names, nil
}

// ListInterfaces enumerates interface names suitable for manual selection,
// loopback and virtual devices excluded.
func (w *Watchdog) ListInterfaces() []string {
	names, err := w.usableLinkNames()
	if err != nil {
		if w.logger != nil {
			w.logger.Debug("interface enumeration failed", slog.String("error", err.Error()))
		}
		return nil
	}
	return names
}

// detectSSID resolves the current Wi-Fi association: nmcli terse output
// first, iwgetid second. An empty string means no association.
func (w *Watchdog) detectSSID(ctx context.Context) string {
	if ssid := w.ssidFromNmcli(ctx); ssid != "" {
		return ssid
	}
	return w.ssidFromIwgetid(ctx)
}

func (w *Watchdog) ssidFromNmcli(ctx context.Context) string {
	output, err := w.exec.Run(ctx, "nmcli", []string{"-t", "-f", "ACTIVE,SSID", "dev", "wifi"})
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(output, "\n") {
		after, found := strings.CutPrefix(line, "yes:")
		if !found {
			continue
		}
		if ssid := strings.TrimSpace(after); ssid != "" {
			return ssid
		}
	}
	return ""
}

func (w *Watchdog) ssidFromIwgetid(ctx context.Context) string {
	output, err := w.exec.Run(ctx, "iwgetid", []string{"-r"})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(output)
}

// linkAvailable reports whether the named link exists and is administratively up.
func (w *Watchdog) linkAvailable(name string) bool {
	link, err := w.nl.LinkByName(name)
	if err != nil || link == nil {
		return false
	}
	attrs := link.Attrs()
	if attrs == nil {
		return false
	}
	return attrs.Flags&net.FlagUp != 0
}

func extractDevice(line string) (string, bool) {
	fields := strings.Fields(line)
	for i := 0; i < len(fields)-1; i++ {
		if fields[i] != "dev" {
			continue
		}
		device := fields[i+1]
		if device == "" {
			return "", false
		}
		return device, true
	}
	return "", false
}

func isVirtualName(name string) bool {
	if name == "" {
		return true
	}
	for _, prefix := range []string{"lo", "docker", "br-", "veth", "ifb", "virbr", "tun", "tap"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
