// Copyright 2019 The go-ultiledger Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	metrics "github.com/rcrowley/go-metrics"

	"github.com/ultiledger/go-ultiledger/consensus"
	"github.com/ultiledger/go-ultiledger/crypto"
	"github.com/ultiledger/go-ultiledger/log"
	"github.com/ultiledger/go-ultiledger/ultpb"
)

var loopbackNodeCount int
var loopbackValue string

// loopbackNode bundles everything one simulated participant needs: its
// Manager plus the outbound envelopes it has produced, fanned out to
// every other participant's inbound queue by the harness below. This is
// the in-process stand-in for a real transport, in the same spirit as a
// loopback peer used to exercise a protocol without a network.
type loopbackNode struct {
	id      string
	manager *consensus.Manager
	inbox   chan *ultpb.Envelope
}

var loopbackCmd = &cobra.Command{
	Use:   "loopback",
	Short: "Run several nodes in one process over an in-memory loopback transport",
	Long: `loopback bootstraps a handful of ballot protocol nodes sharing a unanimous
quorum, seeds a candidate value, and wires their outbound envelopes into each other's
inbound queues so the PREPARE/CONFIRM/EXTERNALIZE state machine can be observed end to
end without any real networking.`,
	Run: func(cmd *cobra.Command, args []string) {
		if loopbackNodeCount < 1 {
			log.Fatal(fmt.Errorf("node count must be at least 1"))
		}

		// each simulated node gets a real node keypair rather than a
		// bare "n1"/"n2" label, so envelopes round-trip through actual
		// signing and verification end to end.
		ids := make([]string, loopbackNodeCount)
		seeds := make(map[string]string, loopbackNodeCount)
		for i := range ids {
			pub, seed, err := crypto.GetNodeKeypair()
			if err != nil {
				log.Fatal(err)
			}
			ids[i] = pub
			seeds[pub] = seed
		}
		quorum := &ultpb.Quorum{Threshold: 1.0, Validators: ids}
		quorumHash, err := ultpb.SHA256Hash(quorum)
		if err != nil {
			log.Fatal(err)
		}

		nodes := make(map[string]*loopbackNode, len(ids))
		for _, id := range ids {
			resolver := func(string) (*ultpb.Quorum, bool) { return quorum, true }
			localNode := consensus.NewLocalNode(id, quorum, quorumHash, resolver)
			scheduler := consensus.NewTimerScheduler()

			candidates := consensus.NewInMemoryCandidateSource()
			candidates.SetCandidate(1, ultpb.Value(loopbackValue))

			driver := consensus.NewDefaultDriver(consensus.AcceptAllValidator{}, candidates, make(chan *ultpb.Envelope, 64), scheduler, seeds[id])
			manager, err := consensus.NewManager(localNode, driver, scheduler, metrics.NewRegistry(), 16)
			if err != nil {
				log.Fatal(err)
			}
			manager.Start()

			nodes[id] = &loopbackNode{id: id, manager: manager, inbox: make(chan *ultpb.Envelope, 256)}
		}

		// Manager resolves federated-voting closure over its own
		// quorumPeer map, not the resolver a node's LocalNode was built
		// with above, so every peer's quorum slice has to be registered
		// here or FederatedAccept/FederatedRatify can never see past a
		// single node.
		for _, n := range nodes {
			for peerID := range nodes {
				if peerID != n.id {
					n.manager.RegisterPeerQuorum(peerID, quorum)
				}
			}
		}

		// fan every node's outbound envelopes into every other node's
		// inbox, including its own (a node processes its own statement
		// through the same ProcessEnvelope path as a peer's).
		for _, n := range nodes {
			go func(n *loopbackNode) {
				for env := range n.manager.Outbound() {
					for _, peer := range nodes {
						select {
						case peer.inbox <- env:
						default:
							log.Warnw("loopback inbox full, dropping envelope", "node", peer.id)
						}
					}
				}
			}(n)
		}
		for _, n := range nodes {
			go func(n *loopbackNode) {
				for env := range n.inbox {
					if err := n.manager.ProcessEnvelope(env); err != nil {
						log.Debugw("envelope rejected", "node", n.id, "err", err)
					}
				}
			}(n)
		}

		// give every node's bump rule a chance to act on the candidate it
		// was seeded with before any peer envelope has arrived.
		for _, n := range nodes {
			if err := n.manager.Nudge(1); err != nil {
				log.Debugw("initial nudge rejected", "node", n.id, "err", err)
			}
		}

		deadline := time.After(5 * time.Second)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				externalized := 0
				for _, n := range nodes {
					if bs, ok := n.manager.Slot(1); ok {
						if value, lc, hc, ok := bs.GetExternalizingState(); ok {
							externalized++
							log.Infow("externalized", "node", n.id, "value", value, "lc", lc, "hc", hc)
						}
					}
				}
				if externalized == len(nodes) {
					for _, n := range nodes {
						n.manager.Stop()
					}
					return
				}
			case <-deadline:
				log.Warnw("loopback run timed out before every node externalized")
				for _, n := range nodes {
					n.manager.Stop()
				}
				return
			}
		}
	},
}

func init() {
	loopbackCmd.Flags().IntVar(&loopbackNodeCount, "nodes", 3, "number of simulated nodes")
	loopbackCmd.Flags().StringVar(&loopbackValue, "value", "genesis", "candidate value every node proposes")
	rootCmd.AddCommand(loopbackCmd)
}
