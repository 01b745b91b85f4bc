package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"github.com/mattn/go-isatty"
	"github.com/phuslu/log"
	"github.com/urfave/cli/v2"

	"github.com/knights-analytics/spanf1"
	"github.com/knights-analytics/spanf1/metrics"
	"github.com/knights-analytics/spanf1/options"
	"github.com/knights-analytics/spanf1/spans"
	"github.com/knights-analytics/spanf1/util"
	"github.com/knights-analytics/spanf1/util/checks"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var inputPath string
var outputPath string
var logLevel string
var flat bool
var flatStrategy string
var rawLabels bool
var tagged bool
var removeOverlap bool
var withTags bool

var inputFlag = &cli.StringFlag{
	Name:        "input",
	Usage:       "Path to the input data",
	Aliases:     []string{"i"},
	Destination: &inputPath,
}

var outputFlag = &cli.StringFlag{
	Name:        "output",
	Usage:       "Path to output",
	Aliases:     []string{"o"},
	Destination: &outputPath,
}

var scoreCommand = &cli.Command{
	Name:  "score",
	Usage: "Compute span F1 counts for model outputs",
	Description: `Score expects a path to a file with input in .jsonl format. Each json line holds one batch:
				{"id": "...", "start_logits": [B][L][2], "end_logits": [B][L][2], "match_logits": [B][L][L], "label_mask": [B][L], "match_labels": [B][L][L]}.
				Masks and labels may be booleans or 0/1 numbers. One line {"id", "tp", "fp", "fn"} is written per batch,
				followed by a summary line with the pooled counts, precision, recall and F1.
				`,
	ArgsUsage: `
				--input: path to a .jsonl file or a folder with .jsonl files to process. If omitted, the input will be read from stdin.
				--output: path to a folder where to write the output. If omitted, the output will be sent to stdout.
				--flat: post-process predictions for flat NER with the masked strategy.
				--flatStrategy: one of NONE, MASKED, EXTRACT, REMOVE_OVERLAP. Overrides --flat.
				--rawLabels: count gold cells outside the label mask or below the diagonal.
				`,
	Flags: []cli.Flag{
		inputFlag,
		outputFlag,
		&cli.BoolFlag{
			Name:        "flat",
			Usage:       "Score flat NER predictions",
			Destination: &flat,
		},
		&cli.StringFlag{
			Name:        "flatStrategy",
			Usage:       "Flat decoding strategy",
			Aliases:     []string{"s"},
			Destination: &flatStrategy,
		},
		&cli.BoolFlag{
			Name:        "rawLabels",
			Usage:       "Do not mask gold labels",
			Destination: &rawLabels,
		},
	},
	Action: func(ctx *cli.Context) error {
		var opts []options.WithOption
		if flat {
			opts = append(opts, options.WithFlat())
		}
		if flatStrategy != "" {
			opts = append(opts, options.WithFlatStrategy(options.FlatStrategy(flatStrategy)))
		}
		if rawLabels {
			opts = append(opts, options.WithRawLabels())
		}
		evaluator, err := spanf1.NewEvaluator(opts...)
		if err != nil {
			return err
		}

		summarize := func() ([]byte, error) {
			stats := evaluator.GetStatistics()
			log.Info().
				Uint64("batches", stats.Batches).
				Dur("total", stats.TotalTime).
				Float64("f1", stats.Score.F1).
				Msg("scoring done")
			return json.Marshal(summaryOutput{
				Summary:        true,
				Batches:        stats.Batches,
				TruePositives:  stats.Counts.TruePositives,
				FalsePositives: stats.Counts.FalsePositives,
				FalseNegatives: stats.Counts.FalseNegatives,
				Precision:      stats.Score.Precision,
				Recall:         stats.Score.Recall,
				F1:             stats.Score.F1,
			})
		}
		return runJob(ctx.Context, scoreLine(evaluator), summarize)
	},
}

var extractCommand = &cli.Command{
	Name:  "extract",
	Usage: "Extract flat spans from boundary and match predictions",
	Description: `Extract expects a path to a file with input in .jsonl format. Each json line holds the predictions for one sequence:
				{"id": "...", "start_pred": [L], "end_pred": [L], "match_pred": [L][L], "label_mask": [L]}.
				If label_mask is omitted every position is valid. One line {"id", "spans"} is written per sequence.
				`,
	ArgsUsage: `
				--input: path to a .jsonl file or a folder with .jsonl files to process. If omitted, the input will be read from stdin.
				--output: path to a folder where to write the output. If omitted, the output will be sent to stdout.
				--tagged: decode through BMES tags instead of direct start/end pairing.
				--removeOverlap: drop spans overlapping an earlier span.
				--tags: also write the BMES tags of the extracted spans.
				`,
	Flags: []cli.Flag{
		inputFlag,
		outputFlag,
		&cli.BoolFlag{
			Name:        "tagged",
			Usage:       "Decode spans through BMES tags",
			Destination: &tagged,
		},
		&cli.BoolFlag{
			Name:        "removeOverlap",
			Usage:       "Remove overlapping spans",
			Destination: &removeOverlap,
		},
		&cli.BoolFlag{
			Name:        "tags",
			Usage:       "Include BMES tags in the output",
			Destination: &withTags,
		},
	},
	Action: func(ctx *cli.Context) error {
		return runJob(ctx.Context, extractLine, nil)
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "spanf1",
		Usage: "Span-level F1 for query-based span extraction NER",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "logLevel",
				Usage:       "Log level (trace, debug, info, warn, error)",
				Destination: &logLevel,
				Value:       "info",
			},
		},
		Before: func(_ *cli.Context) error {
			log.DefaultLogger.SetLevel(log.ParseLevel(logLevel))
			return nil
		},
		Commands: []*cli.Command{scoreCommand, extractCommand},
	}
}

func main() {
	log.DefaultLogger = log.Logger{
		Level:  log.InfoLevel,
		Writer: &log.IOWriter{Writer: os.Stderr},
	}
	checks.Check(newApp().Run(os.Args))
}

type processor func(line []byte) ([]byte, error)

type scoreOutput struct {
	ID             string `json:"id"`
	TruePositives  int64  `json:"tp"`
	FalsePositives int64  `json:"fp"`
	FalseNegatives int64  `json:"fn"`
}

type summaryOutput struct {
	Summary        bool    `json:"summary"`
	Batches        uint64  `json:"batches"`
	TruePositives  int64   `json:"tp"`
	FalsePositives int64   `json:"fp"`
	FalseNegatives int64   `json:"fn"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
}

type extractInput struct {
	ID        string           `json:"id"`
	StartPred []metrics.Flag   `json:"start_pred"`
	EndPred   []metrics.Flag   `json:"end_pred"`
	MatchPred [][]metrics.Flag `json:"match_pred"`
	LabelMask []metrics.Flag   `json:"label_mask"`
}

type extractOutput struct {
	ID    string       `json:"id"`
	Spans []spans.Span `json:"spans"`
	Tags  []string     `json:"tags,omitempty"`
}

func scoreLine(evaluator *spanf1.Evaluator) processor {
	return func(line []byte) ([]byte, error) {
		var record metrics.Record
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, err
		}
		batch, err := record.Batch()
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", record.ID, err)
		}
		counts, err := evaluator.Update(batch)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", record.ID, err)
		}
		return json.Marshal(scoreOutput{
			ID:             record.ID,
			TruePositives:  counts.TruePositives,
			FalsePositives: counts.FalsePositives,
			FalseNegatives: counts.FalseNegatives,
		})
	}
}

func extractLine(line []byte) ([]byte, error) {
	var record extractInput
	if err := json.Unmarshal(line, &record); err != nil {
		return nil, err
	}
	mask := toBools(record.LabelMask)
	if record.LabelMask == nil {
		mask = make([]bool, len(record.StartPred))
		for i := range mask {
			mask[i] = true
		}
	}
	matchPred := make([][]bool, len(record.MatchPred))
	for i, row := range record.MatchPred {
		matchPred[i] = toBools(row)
	}

	extract := spans.ExtractFlat
	if tagged {
		extract = spans.ExtractFlatTagged
	}
	extracted, err := extract(toBools(record.StartPred), toBools(record.EndPred), matchPred, mask)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", record.ID, err)
	}
	if removeOverlap {
		extracted = spans.RemoveOverlap(extracted)
	}

	out := extractOutput{ID: record.ID, Spans: extracted}
	if out.Spans == nil {
		out.Spans = []spans.Span{}
	}
	if withTags {
		if out.Tags, err = spans.ToTags(extracted, len(mask), "ENT"); err != nil {
			return nil, fmt.Errorf("record %s: %w", record.ID, err)
		}
	}
	return json.Marshal(out)
}

func toBools(flags []metrics.Flag) []bool {
	out := make([]bool, len(flags))
	for i, f := range flags {
		out[i] = bool(f)
	}
	return out
}

// runJob feeds every input line through process and writes the results, followed by the
// output of finish when it is set.
func runJob(ctx context.Context, process processor, finish func() ([]byte, error)) (err error) {
	inputChannel := make(chan []byte, 1000)
	processedChannel := make(chan []byte, 1000)
	errorsChannel := make(chan error, 1000)
	nProcessWorkers := 1
	var processedWg, writeWg sync.WaitGroup
	var failed atomic.Int64

	var writer io.WriteCloser = os.Stdout
	if outputPath != "" {
		dest := util.PathJoinSafe(outputPath, "result-0.jsonl")
		writer, err = util.NewWriter(ctx, dest)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, writer.Close())
		}()
	}

	for range nProcessWorkers {
		processedWg.Add(1)
		go processLines(&processedWg, inputChannel, processedChannel, errorsChannel, process)
	}

	writeWg.Add(1)
	go writeOutputs(&writeWg, processedChannel, errorsChannel, writer, &failed)

	readErr := readAllInputs(ctx, inputChannel)

	close(inputChannel)
	processedWg.Wait()
	if readErr == nil && finish != nil {
		summary, finishErr := finish()
		if finishErr != nil {
			errorsChannel <- finishErr
		} else {
			processedChannel <- summary
		}
	}
	close(processedChannel)
	close(errorsChannel)
	writeWg.Wait()

	if readErr != nil {
		return readErr
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d input lines could not be processed", n)
	}
	return nil
}

func readAllInputs(ctx context.Context, inputChannel chan []byte) error {
	exists, err := util.FileExists(ctx, inputPath)
	if err != nil {
		return err
	}

	if exists {
		fileWalker := func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (toContinue bool, err error) {
			if filepath.Ext(info.Name()) == ".jsonl" {
				log.Debug().Str("file", info.Name()).Str("parent", parent).Msg("reading input")
				if err := readInputs(reader, inputChannel); err != nil {
					return false, err
				}
			}
			return true, nil
		}
		return util.FileSystem.Walk(ctx, inputPath, fileWalker)
	}

	if inputPath != "" {
		return fmt.Errorf("file %s does not exist", inputPath)
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		// there is something to process on stdin
		return readInputs(os.Stdin, inputChannel)
	}
	return nil
}

func readInputs(inputSource io.Reader, inputChannel chan []byte) error {
	reader := bufio.NewReader(inputSource)
	for {
		line, err := util.ReadLine(reader)
		if len(line) > 0 {
			inputChannel <- line
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func processLines(wg *sync.WaitGroup, inputChannel chan []byte, processedChannel chan []byte, errorsChannel chan error, process processor) {
	for line := range inputChannel {
		output, err := process(line)
		if err != nil {
			errorsChannel <- err
		} else {
			processedChannel <- output
		}
	}
	wg.Done()
}

func writeOutputs(wg *sync.WaitGroup, processedChannel chan []byte, errorChannel chan error, writeTarget io.Writer, failed *atomic.Int64) {
	for processedChannel != nil || errorChannel != nil {
		select {
		case output, ok := <-processedChannel:
			if !ok {
				processedChannel = nil
				continue
			}
			_, err := writeTarget.Write(append(output, '\n'))
			checks.CheckWithMessage(err, "writing output")
		case err, ok := <-errorChannel:
			if !ok {
				errorChannel = nil
				continue
			}
			failed.Add(1)
			log.Error().Err(err).Msg("skipping input line")
		}
	}
	wg.Done()
}
