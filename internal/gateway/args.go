package gateway

import "strconv"

// The controller speaks Mbps everywhere; only this boundary converts to the
// Kbps the enforcement tools expect.
const kbpsPerMbps = 1000

// applyCommand renders the argument arrays that establish shaping limits.
type applyCommand struct {
	Iface    string
	DownKbps int
	UpKbps   int
}

func newApplyCommand(iface string, downMbps, upMbps int) applyCommand {
	return applyCommand{
		Iface:    iface,
		DownKbps: downMbps * kbpsPerMbps,
		UpKbps:   upMbps * kbpsPerMbps,
	}
}

// ShaperArgs renders the wondershaper invocation.
func (c applyCommand) ShaperArgs() []string {
	return []string{
		"-a", c.Iface,
		"-d", strconv.Itoa(c.DownKbps),
		"-u", strconv.Itoa(c.UpKbps),
	}
}

// EgressArgs renders the tc fallback for the upload cap: a tbf root qdisc.
func (c applyCommand) EgressArgs() []string {
	return []string{
		"qdisc", "replace", "dev", c.Iface, "root",
		"tbf",
		"rate", strconv.Itoa(c.UpKbps) + "kbit",
		"burst", "32kbit",
		"latency", "400ms",
	}
}

// IngressQdiscArgs renders the tc fallback ingress qdisc for the download cap.
func (c applyCommand) IngressQdiscArgs() []string {
	return []string{
		"qdisc", "replace", "dev", c.Iface,
		"handle", "ffff:", "ingress",
	}
}

// IngressFilterDeleteArgs removes a previous policing filter so the add below
// never collides with a stale instance.
func (c applyCommand) IngressFilterDeleteArgs() []string {
	return []string{
		"filter", "del", "dev", c.Iface,
		"parent", "ffff:",
		"protocol", "ip",
		"pref", "50",
	}
}

// IngressFilterAddArgs renders the policing filter enforcing the download cap.
func (c applyCommand) IngressFilterAddArgs() []string {
	return []string{
		"filter", "add", "dev", c.Iface,
		"parent", "ffff:",
		"protocol", "ip",
		"pref", "50",
		"u32", "match", "u32", "0", "0",
		"police",
		"rate", strconv.Itoa(c.DownKbps) + "kbit",
		"burst", "10k",
		"drop",
		"flowid", ":1",
	}
}

// clearCommand renders the argument arrays that remove shaping limits.
type clearCommand struct {
	Iface string
}

// ShaperArgs renders the wondershaper clear invocation.
func (c clearCommand) ShaperArgs() []string {
	return []string{"-c", "-a", c.Iface}
}

// RootDeleteArgs removes the tbf root qdisc installed by the tc fallback.
func (c clearCommand) RootDeleteArgs() []string {
	return []string{"qdisc", "del", "dev", c.Iface, "root"}
}

// IngressDeleteArgs removes the ingress qdisc installed by the tc fallback.
func (c clearCommand) IngressDeleteArgs() []string {
	return []string{"qdisc", "del", "dev", c.Iface, "ingress"}
}

// statusCommand renders the qdisc listing used to detect active shaping.
type statusCommand struct {
	Iface string
}

func (c statusCommand) Args() []string {
	return []string{"qdisc", "show", "dev", c.Iface}
}
