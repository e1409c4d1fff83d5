package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	catalogadapter "switchboard/internal/adapters/catalog"
	"switchboard/internal/domain/model"
	"switchboard/internal/registry"
	"switchboard/pkg/logger"
)

var million = decimal.NewFromInt(1_000_000)

func main() {
	_ = godotenv.Load()

	file := flag.String("file", "", "Catalog JSON file (default: fetch -url)")
	url := flag.String("url", "https://models.dev/api.json", "Catalog URL")
	provider := flag.String("provider", "", "Only list models of this provider")
	tools := flag.Bool("tools", false, "Only list models that support tool calls")
	vision := flag.Bool("vision", false, "Only list models that accept images")
	providersOnly := flag.Bool("providers", false, "List providers instead of models")
	flag.Parse()

	zapLogger, _ := zap.NewDevelopment()
	log := &logger.Logger{SugaredLogger: zapLogger.Sugar()}

	reg, err := registry.NewDefault(log)
	if err != nil {
		log.Errorw("Failed to load registry tables", "error", err)
		os.Exit(1)
	}

	var source catalogadapter.Source = catalogadapter.NewHTTPSource(*url, &http.Client{Timeout: 30 * time.Second})
	if *file != "" {
		source = catalogadapter.NewFileSource(*file)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	snap, err := source.Fetch(ctx)
	if err != nil {
		log.Errorw("Failed to fetch catalog", "source", source.Name(), "error", err)
		os.Exit(1)
	}
	if err := reg.Populate(snap); err != nil {
		log.Errorw("Failed to populate registry", "error", err)
		os.Exit(1)
	}

	if *providersOnly {
		for _, p := range reg.Providers() {
			fmt.Println(p)
		}
		return
	}

	var filter model.ModelFilter
	if *provider != "" {
		filter = filter.WithProvider(*provider)
	}
	if *tools {
		filter = filter.WithTools(true)
	}
	if *vision {
		filter = filter.WithVision(true)
	}

	models := reg.List(&filter)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tCONTEXT\tOUTPUT\t$/M IN\t$/M OUT\tUPDATED")
	for _, m := range models {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.Path(),
			tokens(m.ContextLength),
			tokens(m.CompletionLength),
			m.Cost.Prompt.Mul(million).StringFixed(2),
			m.Cost.Completion.Mul(million).StringFixed(2),
			updated(m.LastUpdated),
		)
	}
	_ = w.Flush()

	fmt.Printf("\n%s models from %d providers\n", humanize.Comma(int64(len(models))), len(reg.Providers()))
}

func tokens(n int) string {
	if n <= 0 {
		return "-"
	}
	return humanize.Comma(int64(n))
}

func updated(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "-"
	}
	return humanize.Time(t)
}
