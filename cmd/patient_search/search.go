package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/gcbaptista/patient-search/model"
)

func searchCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("a query is required", 2)
	}

	req := model.SearchRequest{Query: strings.Join(c.Args().Slice(), " ")}
	if c.IsSet("site") {
		req.Filters.Site = model.StringPtr(c.String("site"))
	}
	if c.IsSet("floor") {
		req.Filters.Floor = model.StringPtr(c.String("floor"))
	}

	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	resp, err := rt.engine.Search(c.Context, req)
	if err != nil {
		return err
	}
	if limit := c.Int("limit"); limit > 0 && len(resp.Hits) > limit {
		resp.Hits = resp.Hits[:limit]
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}
