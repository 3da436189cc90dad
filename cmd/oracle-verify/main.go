// oracle-verify runs a stream of red packets through the step
// orchestrator, writing one witness bundle per step, then replay-verifies
// the whole chain it just wrote. Input is a JSONL file with one red
// packet per line.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/dashboard"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/orchestrator"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/redpacket"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/replay"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/pkg/config"
	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/pkg/store"
)

func main() {
	var (
		packetsPath  = flag.String("packets", "", "JSONL file of red packets, one per line")
		contractPath = flag.String("contracts", "", "YAML contract configuration")
		outRoot      = flag.String("out", "./runs", "output root for step directories")
		seed         = flag.Uint("seed", 1337, "global seed")
		streamID     = flag.String("stream", "default", "stream identifier")
		csvPath      = flag.String("csv", "", "optional dashboard CSV path")
		skipReplay   = flag.Bool("skip-replay", false, "skip the replay pass after the run")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[oracle-verify] ", log.LstdFlags)
	if *packetsPath == "" || *contractPath == "" {
		logger.Fatal("usage: oracle-verify -packets packets.jsonl -contracts contracts.yaml")
	}

	ccfg, err := config.LoadContractConfig(*contractPath)
	if err != nil {
		logger.Fatalf("contract config: %v", err)
	}
	tVer, err := ccfg.BootTVer()
	if err != nil {
		logger.Fatalf("boot transitions: %v", err)
	}

	orch := orchestrator.New(*streamID, *outRoot, uint32(*seed), orchestrator.Configs{
		Percept: ccfg.Percept,
		Model:   ccfg.Model,
		Value:   ccfg.Value,
		Risk:    ccfg.Risk,
		Exec:    ccfg.Exec,
	}, ccfg.StateVocab, ccfg.SkillTable(), tVer, logger)

	f, err := os.Open(*packetsPath)
	if err != nil {
		logger.Fatalf("open packets: %v", err)
	}
	defer f.Close()

	var (
		prevState  string
		prevAction *string
		steps      int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var p redpacket.RedPacket
		if err := json.Unmarshal(line, &p); err != nil {
			logger.Fatalf("step %d: parse red packet: %v", steps, err)
		}
		if prevState == "" {
			prevState = p.ProposedState
		}
		b, err := orch.RunStep(orchestrator.StepInput{Packet: p, PrevState: prevState, PrevAction: prevAction})
		if err != nil {
			logger.Fatalf("step %d: %v", p.StepCounter, err)
		}
		logger.Printf("step %d: selected=%s merkle_root=%s", b.StepCounter, b.SelectedAction, b.MerkleRoot[:16])
		if *csvPath != "" {
			if err := dashboard.Append(*csvPath, dashboard.FromBundle(b, time.Now())); err != nil {
				logger.Fatalf("dashboard: %v", err)
			}
		}
		prevState = b.ObservedNextState
		a := b.SelectedAction
		prevAction = &a
		steps++
	}
	if err := scanner.Err(); err != nil {
		logger.Fatalf("read packets: %v", err)
	}
	logger.Printf("ran %d steps", steps)

	if *skipReplay {
		return
	}
	for i := 0; i < steps; i++ {
		stepDir := filepath.Join(*outRoot, store.StepDirName(i))
		opts := replay.Options{ChainMode: true}
		if i > 0 {
			opts.ParentDir = filepath.Join(*outRoot, store.StepDirName(i-1))
		}
		if _, err := replay.Verify(stepDir, opts); err != nil {
			logger.Fatalf("replay step %d: %v", i, err)
		}
	}
	fmt.Printf("replay OK: %d steps verified\n", steps)
}
