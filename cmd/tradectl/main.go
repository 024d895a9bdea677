package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeprotocol/internal/config"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/ports"
	dbbadger "github.com/tdex-network/tdex-tradeprotocol/internal/infrastructure/storage/db/badger"
	"github.com/urfave/cli/v2"
)

var (
	datadirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "the data directory of the trade protocol engine",
	}
	esploraUrlFlag = &cli.StringFlag{
		Name:  "esplora_url",
		Usage: "the esplora endpoint used for fee estimates",
	}
	confTargetFlag = &cli.IntFlag{
		Name:  "conf_target",
		Usage: "the confirmation target in blocks of fee estimates",
	}
)

func main() {
	if err := config.InitConfig(); err != nil {
		fatal(err)
	}
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	app := newApp(
		config.GetDatadir(),
		config.GetString(config.EsploraUrlKey),
		config.GetInt(config.FeeConfTargetKey),
	)
	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func newApp(datadir, esploraUrl string, confTarget int) *cli.App {
	datadirFlag.Value = datadir
	esploraUrlFlag.Value = esploraUrl
	confTargetFlag.Value = confTarget

	app := cli.NewApp()
	app.Name = "tradectl"
	app.Usage = "Command line interface to inspect and operate the trades of the engine"
	app.Flags = []cli.Flag{datadirFlag, esploraUrlFlag, confTargetFlag}
	app.Commands = append(
		app.Commands,
		&tradesCmd,
		&tradeCmd,
		&failedCmd,
		&messagesCmd,
		&statsCmd,
		&disputeCmd,
		&feeRateCmd,
	)
	return app
}

// openRepoManager opens the badger stores of the datadir. The engine must not
// be running since badger takes an exclusive lock on its directories.
func openRepoManager(c *cli.Context) (ports.RepoManager, error) {
	datadir := c.String(datadirFlag.Name)
	if len(datadir) <= 0 {
		return nil, fmt.Errorf("missing datadir")
	}
	dbDir := filepath.Join(datadir, config.DbLocation)
	if _, err := os.Stat(dbDir); err != nil {
		return nil, fmt.Errorf("no database found in %s", datadir)
	}
	return dbbadger.NewRepoManager(dbDir, log.StandardLogger())
}

func printJSON(c *cli.Context, resp interface{}) error {
	b, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		return fmt.Errorf("unable to encode response: %w", err)
	}
	fmt.Fprintln(c.App.Writer, string(b))
	return nil
}

func fatal(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "[tradectl] %v\n", err)
	os.Exit(1)
}
