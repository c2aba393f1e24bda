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
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	metrics "github.com/rcrowley/go-metrics"

	"github.com/ultiledger/go-ultiledger/consensus"
	"github.com/ultiledger/go-ultiledger/consensus/catchup"
	"github.com/ultiledger/go-ultiledger/db/boltdb"
	"github.com/ultiledger/go-ultiledger/log"
	"github.com/ultiledger/go-ultiledger/node"
	"github.com/ultiledger/go-ultiledger/ultpb"
)

var cfgFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a single ballot protocol node with config",
	Long: `Start a ballot protocol node using the quorum and storage settings in the
given config file, restoring any catch-up state persisted from a previous run before
accepting new envelopes.`,
	Run: func(cmd *cobra.Command, args []string) {
		if cfgFile == "" {
			log.Fatal(errors.New("config file not provided"))
		}
		v := viper.New()
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			log.Fatal(err)
		}
		c, err := node.NewConfig(v)
		if err != nil {
			log.Fatal(err)
		}

		quorumHash, err := c.QuorumHash()
		if err != nil {
			log.Fatal(err)
		}

		store := boltdb.New(c.DBPath)
		defer store.Close()

		cache, err := catchup.New(store)
		if err != nil {
			log.Fatal(err)
		}

		localNode := consensus.NewLocalNode(c.NodeID, c.Quorum, quorumHash, nil)
		scheduler := consensus.NewTimerScheduler()
		driver := consensus.NewDefaultDriver(
			consensus.AcceptAllValidator{},
			consensus.NewInMemoryCandidateSource(),
			make(chan *ultpb.Envelope, 64),
			scheduler,
			c.Seed,
		)

		manager, err := consensus.NewManager(localNode, driver, scheduler, metrics.NewRegistry(), 16)
		if err != nil {
			log.Fatal(err)
		}

		if err := catchup.Restore(store, manager.EnsureSlot); err != nil {
			log.Fatal(err)
		}

		log.Infow("node bootstrapped", "nodeID", c.NodeID, "quorumHash", quorumHash, "port", c.Port)
		log.Infow("scpnode start has no wired transport (out of scope); use the loopback command to exercise the protocol locally")

		manager.Start()
		defer manager.Stop()

		for env := range manager.Outbound() {
			if err := cache.Save(env); err != nil {
				log.Errorw("failed to persist self-emitted envelope", "err", err)
			}
		}
	},
}

func init() {
	startCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "path to the node config file")
	startCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(startCmd)
}
