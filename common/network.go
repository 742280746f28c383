package common

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

type Network struct {
	Name   string
	Params *chaincfg.Params
}

var Bitcoin = Network{
	Name:   "bitcoin",
	Params: &chaincfg.MainNetParams,
}

var TestNet = Network{
	Name:   "testnet",
	Params: &chaincfg.TestNet3Params,
}

var SigNet = Network{
	Name:   "signet",
	Params: &chaincfg.SigNetParams,
}

var RegTest = Network{
	Name:   "regtest",
	Params: &chaincfg.RegressionNetParams,
}

var networks = []Network{Bitcoin, TestNet, SigNet, RegTest}

// NetworkFromString accepts the network names used on the command line
// ("bitcoin", "testnet", "signet", "regtest") and "mainnet" as an alias.
func NetworkFromString(name string) (Network, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "mainnet" {
		name = Bitcoin.Name
	}
	for _, n := range networks {
		if n.Name == name {
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("unknown network %q", name)
}

func (n Network) String() string {
	return n.Name
}

func (n Network) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Name)
}

func (n *Network) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	net, err := NetworkFromString(name)
	if err != nil {
		return err
	}
	*n = net
	return nil
}
