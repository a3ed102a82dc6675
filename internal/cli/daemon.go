package cli

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/happyhackingspace/ffml"
	"github.com/happyhackingspace/ffml/hogwild"
	"github.com/happyhackingspace/ffml/parser"
	"github.com/spf13/cobra"
)

// newDaemonCommand serves predictions (and, with --learn, training updates)
// over a line-oriented TCP protocol: one example per line in, one
// prediction per line out, matching the text record format the file-based
// commands use. hogwild_load isn't accepted here — a running daemon is
// expected to be seeded by --weights at startup instead.
func (c *CLI) newDaemonCommand() *cobra.Command {
	mf := &modelFlags{}
	var weightsPath, saveOnExit string
	var port int
	var learn bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Serve predictions over a TCP socket",
		Example: `  ffml daemon --port 26542 --namespaces ns.csv --field a=user,item --weights weights.bin
  ffml daemon --port 26542 --config model.yaml --learn --save-on-exit weights.bin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			model, p, err := mf.resolve()
			if err != nil {
				return err
			}

			if weightsPath != "" {
				if err := loadWeights(model, weightsPath); err != nil {
					return fmt.Errorf("cli: loading weights: %w", err)
				}
			}

			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				return fmt.Errorf("cli: listening on port %d: %w", port, err)
			}
			slog.Info("daemon listening", "port", port, "learn", learn, "workers", mf.workers)

			pool := model.NewPool(mf.workers, mf.channelDepth)
			var serial atomic.Uint64

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				slog.Info("shutting down")
				_ = ln.Close()
			}()

			for {
				conn, err := ln.Accept()
				if err != nil {
					break
				}
				go serveConn(conn, model, p, pool, &serial, learn)
			}

			pool.Close()
			if saveOnExit != "" {
				f, err := os.Create(saveOnExit)
				if err != nil {
					return fmt.Errorf("cli: creating %q: %w", saveOnExit, err)
				}
				defer f.Close()
				if err := model.WriteWeights(f); err != nil {
					return fmt.Errorf("cli: writing weights: %w", err)
				}
				slog.Info("weights saved", "path", saveOnExit)
			}
			return nil
		},
	}

	mf.register(cmd)
	cmd.Flags().StringVar(&weightsPath, "weights", "", "Weights file to load at startup")
	cmd.Flags().StringVar(&saveOnExit, "save-on-exit", "", "Weights file to write on shutdown")
	cmd.Flags().IntVar(&port, "port", 26542, "TCP port to listen on")
	cmd.Flags().BoolVar(&learn, "learn", false, "Train on every received example instead of only predicting")
	return cmd
}

// serveConn handles one client connection: each line is parsed as an
// example and a prediction is written back, one per line. When learn is
// set, the example is also dispatched to the shared pool for training
// before the response is sent, so the client sees the pre-update
// prediction — the same ordering Learn itself uses.
func serveConn(conn net.Conn, model ffml.Model, p *parser.Parser, pool hogwild.Dispatcher, serial *atomic.Uint64, learn bool) {
	defer conn.Close()

	pb := model.NewWorkerBuffer()
	scanner := bufio.NewScanner(conn)
	w := bufio.NewWriter(conn)
	defer w.Flush()

	for scanner.Scan() {
		n := serial.Add(1)
		outcome := p.Parse(scanner.Text(), n)

		switch outcome.Kind {
		case parser.OutcomeExample:
			var prediction float32
			if learn {
				result := make(chan float32, 1)
				pool.Submit(hogwild.Job{Example: outcome.Example, Result: result})
				prediction = <-result
			} else {
				prediction = model.Predict(outcome.Example, pb)
			}
			fmt.Fprintf(w, "%v\n", prediction)
			w.Flush()
		case parser.OutcomeFlush:
			w.Flush()
		case parser.OutcomeErr:
			slog.Debug("daemon: skipping unparsable line", "error", outcome.Err)
			fmt.Fprintf(w, "error: %v\n", outcome.Err)
			w.Flush()
		case parser.OutcomeHogwildLoad:
			fmt.Fprintln(w, "error: hogwild_load is not accepted by a running daemon")
			w.Flush()
		}
	}
}
