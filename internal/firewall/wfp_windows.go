//go:build windows

package firewall

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/windows"

	"github.com/littlehydra/daemon/internal/lherr"
)

// providerKey is the fixed provider GUID every filter this engine
// installs is tagged with, so they can all be recognized (and, if ever
// needed, bulk-removed) independently of whatever other software has
// its own WFP filters active on the host.
var providerKey = mustGUID("abad1dea-4141-4141-0000-0c0ffee00000")

// fwpuclnt.dll exposes the WFP engine management API only as raw exports;
// there is no typed wrapper for it in golang.org/x/sys/windows, so the
// handful of calls this engine needs are declared the same way the
// teacher declares its own wevtapi.dll surface.
var (
	modfwpuclnt           = windows.NewLazySystemDLL("fwpuclnt.dll")
	procFwpmEngineOpen0   = modfwpuclnt.NewProc("FwpmEngineOpen0")
	procFwpmEngineClose0  = modfwpuclnt.NewProc("FwpmEngineClose0")
	procFwpmProviderAdd0  = modfwpuclnt.NewProc("FwpmProviderAdd0")
	procFwpmFilterAdd0    = modfwpuclnt.NewProc("FwpmFilterAdd0")
	procFwpmFilterDelete0 = modfwpuclnt.NewProc("FwpmFilterDeleteById0")
)

const (
	rpcCAuthnDefault = 0xFFFFFFFF

	fwpmLayerALEAuthRecvAcceptV4 = "c38d57d1-05a7-4c33-904f-7fbceee60e82"

	fwpMatchEqual = 0

	fwpmConditionIPLocalPort = "0d89c7e9-1edb-49fa-b862-d6acf69c61f3"

	fwpUint16       = 3
	fwpActionBlock  = 0x00000001
	fwpActionPermit = 0x00000002 | 0x00001000 // FWP_ACTION_PERMIT | FWP_ACTION_FLAG_TERMINATING
)

func mustGUID(s string) *windows.GUID {
	g, err := windows.GUIDFromString("{" + s + "}")
	if err != nil {
		panic(fmt.Sprintf("firewall: invalid provider GUID %q: %v", s, err))
	}
	return &g
}

// randomGUID mints a fresh filter key from a v4 UUID. The WFP engine
// only requires filter keys to be unique; reusing the same random-UUID
// generator the rest of the daemon already depends on avoids needing a
// second source of randomness just for this.
func randomGUID() windows.GUID {
	id := uuid.New()
	return windows.GUID{
		Data1: uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3]),
		Data2: uint16(id[4])<<8 | uint16(id[5]),
		Data3: uint16(id[6])<<8 | uint16(id[7]),
		Data4: [8]byte{id[8], id[9], id[10], id[11], id[12], id[13], id[14], id[15]},
	}
}

// wfpEngine is the Windows implementation of Engine. It tracks every
// filter ID it installs per service name so RevokePorts can remove
// exactly the filters it owns without needing to enumerate the whole
// system's filter table.
type wfpEngine struct {
	handle uintptr

	mu      sync.Mutex
	filters map[string][]uint64 // service name -> filter IDs
}

// New opens the WFP engine and installs this daemon's provider, ready to
// add and remove per-service port filters.
func New() (Engine, error) {
	e := &wfpEngine{filters: make(map[string][]uint64)}

	handle, err := engineOpen()
	if err != nil {
		return nil, lherr.New(lherr.Firewall, "firewall.New", err)
	}
	e.handle = handle

	if err := e.installProvider(); err != nil {
		procFwpmEngineClose0.Call(e.handle)
		return nil, err
	}
	return e, nil
}

func engineOpen() (uintptr, error) {
	var handle uintptr
	r1, _, callErr := procFwpmEngineOpen0.Call(
		0,
		rpcCAuthnDefault,
		0,
		0,
		uintptr(unsafe.Pointer(&handle)),
	)
	if r1 != 0 {
		return 0, fmt.Errorf("FwpmEngineOpen0: %w (0x%x)", callErr, r1)
	}
	return handle, nil
}

// fwpmDisplayData0 mirrors the FWPM_DISPLAY_DATA0 struct: a name and
// description pointer pair every WFP object carries for tooling like
// wf.msc to show.
type fwpmDisplayData0 struct {
	name        *uint16
	description *uint16
}

// fwpmProvider0 mirrors the subset of FWPM_PROVIDER0 this engine sets.
type fwpmProvider0 struct {
	providerKey windows.GUID
	displayData fwpmDisplayData0
	flags       uint32
	providerDataSize uint32
	providerDataPtr uintptr
	serviceName *uint16
}

func (e *wfpEngine) installProvider() error {
	name, err := windows.UTF16PtrFromString("LittleHydra")
	if err != nil {
		return lherr.New(lherr.Firewall, "firewall.installProvider", err)
	}
	desc, err := windows.UTF16PtrFromString("LittleHydra per-service port filters")
	if err != nil {
		return lherr.New(lherr.Firewall, "firewall.installProvider", err)
	}

	provider := fwpmProvider0{
		providerKey: *providerKey,
		displayData: fwpmDisplayData0{name: name, description: desc},
	}

	r1, _, callErr := procFwpmProviderAdd0.Call(e.handle, uintptr(unsafe.Pointer(&provider)), 0)
	// FWP_E_ALREADY_EXISTS (0x80320009): a previous run already installed
	// the provider, which is expected on every startup after the first.
	if r1 != 0 && r1 != 0x80320009 {
		return lherr.New(lherr.Firewall, "firewall.installProvider", fmt.Errorf("FwpmProviderAdd0: %w (0x%x)", callErr, r1))
	}
	return nil
}

// fwConditionValue0 mirrors FWP_CONDITION_VALUE0 for the uint16 case used
// by every condition this engine constructs (a single local port match).
type fwConditionValue0 struct {
	valueType uint32
	value     uint64 // holds the union; only the low 16 bits are read back for fwpUint16
}

type fwpmFilterCondition0 struct {
	fieldKey  windows.GUID
	matchType uint32
	value     fwConditionValue0
}

type fwpmAction0 struct {
	actionType uint32
	filterType windows.GUID
}

type fwpmFilter0 struct {
	filterKey         windows.GUID
	displayData       fwpmDisplayData0
	flags             uint32
	providerKey       *windows.GUID
	providerDataSize uint32
	providerDataPtr uintptr
	layerKey          windows.GUID
	subLayerKey       windows.GUID
	weight            fwConditionValue0
	numFilterConditions uint32
	filterCondition   *fwpmFilterCondition0
	action            fwpmAction0
	rawContext        uint64
	reserved          uintptr
	filterId          uint64
	effectiveWeight   fwConditionValue0
}

// PermitPorts installs one ALE_AUTH_RECV_ACCEPT_V4 filter per port,
// matching the local port exactly and permitting the connection. Calling
// this again for the same name first revokes the previous filter set so
// re-applying a service's ports after a config edit never accumulates
// stale filters.
func (e *wfpEngine) PermitPorts(name string, ports []uint16) error {
	if err := e.RevokePorts(name); err != nil {
		return err
	}
	if len(ports) == 0 {
		return nil
	}

	layerKey, err := windows.GUIDFromString("{" + fwpmLayerALEAuthRecvAcceptV4 + "}")
	if err != nil {
		return lherr.New(lherr.Firewall, "firewall.PermitPorts", err)
	}
	conditionKey, err := windows.GUIDFromString("{" + fwpmConditionIPLocalPort + "}")
	if err != nil {
		return lherr.New(lherr.Firewall, "firewall.PermitPorts", err)
	}

	var ids []uint64
	for _, port := range ports {
		filterName, err := windows.UTF16PtrFromString(fmt.Sprintf("littlehydra-%s-%d", name, port))
		if err != nil {
			return lherr.New(lherr.Firewall, "firewall.PermitPorts", err)
		}

		cond := fwpmFilterCondition0{
			fieldKey:  conditionKey,
			matchType: fwpMatchEqual,
			value:     fwConditionValue0{valueType: fwpUint16, value: uint64(port)},
		}
		filter := fwpmFilter0{
			filterKey:           randomGUID(),
			displayData:         fwpmDisplayData0{name: filterName},
			providerKey:         providerKey,
			layerKey:            layerKey,
			numFilterConditions: 1,
			filterCondition:     &cond,
			action:              fwpmAction0{actionType: fwpActionPermit},
		}

		var filterID uint64
		r1, _, callErr := procFwpmFilterAdd0.Call(
			e.handle,
			uintptr(unsafe.Pointer(&filter)),
			0,
			uintptr(unsafe.Pointer(&filterID)),
		)
		if r1 != 0 {
			e.revokeIDs(ids)
			return lherr.New(lherr.Firewall, "firewall.PermitPorts", fmt.Errorf("FwpmFilterAdd0 port %d: %w (0x%x)", port, callErr, r1))
		}
		ids = append(ids, filterID)
	}

	e.mu.Lock()
	e.filters[name] = ids
	e.mu.Unlock()
	return nil
}

// RevokePorts removes every filter tracked under name. It is a no-op if
// name has no filters installed, which PermitPorts relies on since it
// calls RevokePorts first for every name, including first-time ones.
func (e *wfpEngine) RevokePorts(name string) error {
	e.mu.Lock()
	ids := e.filters[name]
	delete(e.filters, name)
	e.mu.Unlock()

	return e.revokeIDs(ids)
}

func (e *wfpEngine) revokeIDs(ids []uint64) error {
	for _, id := range ids {
		r1, _, callErr := procFwpmFilterDelete0.Call(e.handle, uintptr(id))
		if r1 != 0 {
			return lherr.New(lherr.Firewall, "firewall.revokeIDs", fmt.Errorf("FwpmFilterDeleteById0(%d): %w (0x%x)", id, callErr, r1))
		}
	}
	return nil
}

func (e *wfpEngine) Close() error {
	r1, _, callErr := procFwpmEngineClose0.Call(e.handle)
	if r1 != 0 {
		return fmt.Errorf("FwpmEngineClose0: %w (0x%x)", callErr, r1)
	}
	return nil
}
