package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/park285/nickguard/internal/builder"
	appcfg "github.com/park285/nickguard/internal/config"
	"github.com/park285/nickguard/internal/msgcat"
	"github.com/park285/nickguard/internal/obslog"
	"github.com/park285/nickguard/internal/report"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "nickcheck",
		Usage: "classify nicknames with the nickguard rules offline",
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "rules",
			Usage:   "rule file, defaults to RULES_PATH",
			EnvVars: []string{"RULES_PATH"},
		},
		&cli.StringFlag{
			Name:  "messages",
			Usage: "message catalog override directory",
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:      "check",
			Usage:     "print the verdict for each nickname",
			ArgsUsage: "NICK...",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "ai", Usage: "consult the AI tier for REVIEW verdicts"},
				&cli.BoolFlag{Name: "json", Usage: "print JSON lines"},
			},
			Action: check,
		},
		{
			Name:      "normalize",
			Usage:     "print the normalized form of each nickname",
			ArgsUsage: "NICK...",
			Action:    normalize,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func classifier(cctx *cli.Context) (*builder.Classifier, error) {
	cfg, err := appcfg.LoadOffline()
	if err != nil {
		return nil, err
	}
	if p := cctx.String("rules"); p != "" {
		cfg.RulesPath = p
	}
	if !cctx.Bool("ai") {
		cfg.AIEnabled = false
	}
	if err := obslog.InitFromEnv(); err != nil {
		return nil, err
	}
	return builder.NewClassifier(cctx.Context, cfg, obslog.L())
}

func check(cctx *cli.Context) error {
	if cctx.NArg() == 0 {
		return cli.Exit("at least one nickname is required", 2)
	}
	cl, err := classifier(cctx)
	if err != nil {
		return err
	}
	defer cl.Close()

	cat, err := msgcat.New(cctx.String("messages"))
	if err != nil {
		return err
	}
	f := report.NewFormatter(cat, 0)
	enc := json.NewEncoder(os.Stdout)

	for _, nick := range cctx.Args().Slice() {
		res := cl.Pipeline.CheckOne(cctx.Context, nick, cctx.Bool("ai"))
		if cctx.Bool("json") {
			if err := enc.Encode(res); err != nil {
				return err
			}
			continue
		}
		fmt.Println(f.Check(res))
		fmt.Println()
	}
	return nil
}

func normalize(cctx *cli.Context) error {
	cl, err := classifier(cctx)
	if err != nil {
		return err
	}
	defer cl.Close()
	snap := cl.Rules.Snapshot()
	for _, nick := range cctx.Args().Slice() {
		fmt.Printf("%s\t%s\n", nick, snap.Normalize(nick))
	}
	return nil
}
