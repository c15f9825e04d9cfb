package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli/v2"
	"github.com/zeromicro/go-zero/core/conf"

	"github.com/xcono/gridbase/schema"
	"github.com/xcono/gridbase/web"

	// database drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var configFile = flag.String("f", "config.yaml", "the config file")

func main() {

	flag.Parse()

	var c schema.Config
	conf.MustLoad(*configFile, &c)
	c.Normalize()

	app := &cli.App{
		Name:  "gridbase",
		Usage: "Schema-driven record store",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start serving service",
				Args:  true,
				Action: func(cmd *cli.Context) error {

					web.StartServer(c) //blocking call
					return nil
				},
			},
			{
				Name:  "inspect",
				Usage: "Print a workspace's databases and views as JSON",
				Args:  true,
				Action: func(cmd *cli.Context) error {

					workspace := cmd.Args().Get(0)
					if workspace == "" {
						workspace = c.DefaultWorkspace
					}

					logger, err := web.NewLogger(c.Debug)
					if err != nil {
						return err
					}
					svc, closeDB, err := web.Wire(c, logger)
					if err != nil {
						return err
					}
					defer closeDB()

					dbs, err := svc.Databases.ListByWorkspace(context.Background(), workspace)
					if err != nil {
						return err
					}

					jsonData, err := json.MarshalIndent(dbs, "", "  ")
					if err != nil {
						return err
					}
					fmt.Println(string(jsonData))

					return nil
				},
			},
			{
				Name:  "seed",
				Usage: "Provision template databases for a workspace",
				Args:  true,
				Action: func(cmd *cli.Context) error {

					workspace := cmd.Args().Get(0)
					if workspace == "" {
						workspace = c.DefaultWorkspace
					}

					logger, err := web.NewLogger(c.Debug)
					if err != nil {
						return err
					}
					svc, closeDB, err := web.Wire(c, logger)
					if err != nil {
						return err
					}
					defer closeDB()

					ctx := context.Background()
					for _, entityType := range schema.EntityTypes() {
						db, err := svc.Databases.Init(ctx, workspace, entityType, c.DefaultActor)
						if err != nil {
							return err
						}
						fmt.Printf("%s\t%s\n", entityType, db.ID)
					}

					return nil
				},
			},
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.Run(os.Args); err != nil {
		panic(err)
	}
}
