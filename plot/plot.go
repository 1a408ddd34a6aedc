// Package plot defines the domain model for the plot directory: plot
// identifiers, owners, and the instance a plot is assigned to.
package plot

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/DynamicCake/dftools/crypto"
)

// ID identifies a plot. IDs are assigned by the game platform, never
// generated here. Negative values never name a real plot; they are reserved
// for cache sentinels.
type ID int32

// Sentinel is the plot id used to cache negative lookups.
const Sentinel ID = -1

// Plot is a registered plot: its id, the UUID of the player that owns it,
// and the instance it is assigned to.
type Plot struct {
	PlotID   ID        `json:"plot_id"`
	Owner    uuid.UUID `json:"owner"`
	Instance Instance  `json:"instance"`
}

// Unregistered is a plot claim parsed from the User-Agent credential. The
// owner is a claimed player name, not yet resolved to a UUID.
type Unregistered struct {
	PlotID ID
	Owner  string
}

// Instance identifies the deployment a plot lives on. An empty domain means
// the current instance.
type Instance struct {
	Key    crypto.PublicKey `json:"key"`
	Domain InstanceDomain   `json:"domain"`
}

// NewInstance builds an Instance from a key and a validated domain.
func NewInstance(key crypto.PublicKey, domain InstanceDomain) Instance {
	return Instance{Key: key, Domain: domain}
}

// IsCurrent reports whether the instance refers to the running deployment.
func (i Instance) IsCurrent() bool {
	return i.Domain.IsCurrent()
}

// Encode renders the instance as "domain:base64key", substituting
// thisDomain when the instance refers to itself.
func (i Instance) Encode(thisDomain string) string {
	domain := string(i.Domain)
	if i.Domain.IsCurrent() {
		domain = thisDomain
	}
	return fmt.Sprintf("%s:%s", domain, i.Key.String())
}

// SendInstance is the wire form of an instance identity: a base64 public
// key and a domain string.
type SendInstance struct {
	Key    string `json:"key"`
	Domain string `json:"domain"`
}

// Parse validates the wire form into an Instance.
func (s SendInstance) Parse() (Instance, error) {
	key, err := crypto.NewPublicKeyFromString(s.Key)
	if err != nil {
		return Instance{}, fmt.Errorf("instance key: %w", err)
	}
	domain, err := ParseInstanceDomain(s.Domain)
	if err != nil {
		return Instance{}, err
	}
	return Instance{Key: key, Domain: domain}, nil
}
