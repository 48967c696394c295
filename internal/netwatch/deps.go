package netwatch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/vishvananda/netlink"

	"shaperd/internal/session"
)

// NetlinkClient abstracts the netlink operations the watchdog needs, for
// easier testing and substitution.
type NetlinkClient interface {
	LinkList() ([]netlink.Link, error)
	LinkByName(name string) (netlink.Link, error)
	LinkByIndex(index int) (netlink.Link, error)
	RouteList(link netlink.Link, family int) ([]netlink.Route, error)
}

// CommandExecutor abstracts probe command execution.
type CommandExecutor interface {
	Run(ctx context.Context, name string, args []string) (string, error)
}

// EventSink receives the events the watchdog emits. The controller
// implements it.
type EventSink interface {
	Post(ev session.Event)
}

type defaultNetlinkClient struct{}

func (defaultNetlinkClient) LinkList() ([]netlink.Link, error) {
	return netlink.LinkList()
}

func (defaultNetlinkClient) LinkByName(name string) (netlink.Link, error) {
	return netlink.LinkByName(name)
}

func (defaultNetlinkClient) LinkByIndex(index int) (netlink.Link, error) {
	return netlink.LinkByIndex(index)
}

func (defaultNetlinkClient) RouteList(link netlink.Link, family int) ([]netlink.Route, error) {
	return netlink.RouteList(link, family)
}

type processExecutor struct{}

func (processExecutor) Run(ctx context.Context, name string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	return output.String(), err
}

func safeGetLinkAttrs(client NetlinkClient, index int) (*netlink.LinkAttrs, error) {
	link, err := client.LinkByIndex(index)
	if err != nil {
		return nil, fmt.Errorf("link by index %d: %w", index, err)
	}
	if link == nil {
		return nil, fmt.Errorf("link is nil for index %d", index)
	}
	attrs := link.Attrs()
	if attrs == nil {
		return nil, fmt.Errorf("link attrs is nil for index %d", index)
	}
	return attrs, nil
}
