//go:build windows

package firewall

import (
	"fmt"

	ole "github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"

	"github.com/littlehydra/daemon/internal/lherr"
)

// netFwProfileTypeAll mirrors NET_FW_PROFILE2_ALL from netfw.h: applying a
// setting against this mask touches the domain, private and public
// profiles in one call instead of three.
const netFwProfileTypeAll = 0x7FFFFFFF

// Fixed names for the catch-all COM firewall rule pair, matched exactly
// so a second startup finds and skips rules it already created instead
// of accumulating duplicates.
const (
	allowAnyInName  = "AllowAnyProgramAnyPortCOMIn"
	allowAnyOutName = "AllowAnyProgramAnyPortCOMOut"
)

// DisableLegacyFirewalls sets, on every Windows Firewall profile,
// FirewallEnabled=false, BlockAllInboundTraffic=false, an allow default
// inbound action and NotificationsDisabled=true, and ensures the two
// allow-any-program/any-port rules exist, using the same INetFwPolicy2
// COM automation surface the legacy netsh/wf.msc tooling is built on.
func (e *wfpEngine) DisableLegacyFirewalls() error {
	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		if oleErr, ok := err.(*ole.OleError); !ok || oleErr.Code() != 0x80010106 {
			return lherr.New(lherr.ComInit, "firewall.DisableLegacyFirewalls", err)
		}
	}
	defer ole.CoUninitialize()

	policyUnknown, err := oleutil.CreateObject("HNetCfg.FwPolicy2")
	if err != nil {
		return lherr.New(lherr.Firewall, "firewall.DisableLegacyFirewalls", fmt.Errorf("create HNetCfg.FwPolicy2: %w", err))
	}
	defer policyUnknown.Release()

	policy, err := policyUnknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return lherr.New(lherr.Firewall, "firewall.DisableLegacyFirewalls", err)
	}
	defer policy.Release()

	profileProps := []struct {
		name  string
		value any
	}{
		{"FirewallEnabled", false},
		{"BlockAllInboundTraffic", false},
		{"DefaultInboundAction", 1}, // NET_FW_ACTION_ALLOW
		{"NotificationsDisabled", true},
	}
	for _, p := range profileProps {
		if _, err := oleutil.PutProperty(policy, p.name, netFwProfileTypeAll, p.value); err != nil {
			return lherr.New(lherr.Firewall, "firewall.DisableLegacyFirewalls", fmt.Errorf("set %s: %w", p.name, err))
		}
	}

	rulesDisp, err := oleutil.GetProperty(policy, "Rules")
	if err != nil {
		return lherr.New(lherr.Firewall, "firewall.DisableLegacyFirewalls", fmt.Errorf("get Rules: %w", err))
	}
	rules := rulesDisp.ToIDispatch()
	defer rulesDisp.Clear()

	if err := ensureAllowAnyRule(rules, allowAnyInName, "1"); err != nil {
		return err
	}
	if err := ensureAllowAnyRule(rules, allowAnyOutName, "2"); err != nil {
		return err
	}
	return nil
}

// ensureAllowAnyRule creates a catch-all allow rule named ruleName if one
// doesn't already exist. direction is "1" for inbound, "2" for outbound,
// matching NET_FW_RULE_DIRECTION_.
func ensureAllowAnyRule(rules *ole.IDispatch, ruleName, direction string) error {
	_, lookupErr := oleutil.CallMethod(rules, "Item", ruleName)
	if lookupErr == nil {
		return nil
	}

	ruleUnknown, err := oleutil.CreateObject("HNetCfg.FWRule")
	if err != nil {
		return lherr.New(lherr.Firewall, "firewall.ensureAllowAnyRule", fmt.Errorf("create HNetCfg.FWRule: %w", err))
	}
	defer ruleUnknown.Release()

	rule, err := ruleUnknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return lherr.New(lherr.Firewall, "firewall.ensureAllowAnyRule", err)
	}
	defer rule.Release()

	props := []struct {
		name  string
		value any
	}{
		{"Name", ruleName},
		{"Description", "Allow any program, any port (managed)."},
		{"Direction", direction},
		{"Protocol", 256}, // NET_FW_IP_PROTOCOL_ANY
		{"Enabled", true},
		{"Profiles", netFwProfileTypeAll},
		{"Action", 1}, // NET_FW_ACTION_ALLOW
	}
	for _, p := range props {
		if _, err := oleutil.PutProperty(rule, p.name, p.value); err != nil {
			return lherr.New(lherr.Firewall, "firewall.ensureAllowAnyRule", fmt.Errorf("set %s: %w", p.name, err))
		}
	}

	if _, err := oleutil.CallMethod(rules, "Add", rule); err != nil {
		return lherr.New(lherr.Firewall, "firewall.ensureAllowAnyRule", fmt.Errorf("add rule %q: %w", ruleName, err))
	}
	return nil
}
