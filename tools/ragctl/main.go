package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aihub/medical-rag/internal/config"
	"github.com/aihub/medical-rag/internal/di"
	"github.com/aihub/medical-rag/internal/knowledge"
	"github.com/aihub/medical-rag/internal/logger"
	"github.com/joho/godotenv"
)

const usage = `用法:
  ragctl build              重新读取语料、向量化并写入快照
  ragctl search <问题> [k]  加载索引后直接检索`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(2)
	}

	_ = godotenv.Load()
	if err := config.LoadConfig(); err != nil {
		fail(err)
	}
	cfg := config.AppConfig
	if err := logger.InitLogger(cfg.Log.Level, "console"); err != nil {
		fail(err)
	}
	defer logger.Sync()

	container, err := di.BuildContainer(cfg)
	if err != nil {
		fail(err)
	}

	var engine *knowledge.SearchEngine
	if err := container.Invoke(func(e *knowledge.SearchEngine) { engine = e }); err != nil {
		fail(err)
	}
	defer func() {
		_ = container.Invoke(func(c *di.Closers) { _ = c.CloseAll() })
	}()

	ctx := context.Background()
	switch os.Args[1] {
	case "build":
		start := time.Now()
		if err := engine.Rebuild(ctx); err != nil {
			fail(err)
		}
		printStats(engine.Stats(), time.Since(start))
	case "search":
		if len(os.Args) < 3 {
			fmt.Println(usage)
			os.Exit(2)
		}
		k := cfg.Retrieval.TopK
		if len(os.Args) > 3 {
			if k, err = strconv.Atoi(os.Args[3]); err != nil {
				fail(fmt.Errorf("k 必须是整数: %w", err))
			}
		}
		if err := engine.Initialize(ctx); err != nil {
			fail(err)
		}
		results, err := engine.Search(ctx, os.Args[2], k)
		if err != nil {
			fail(err)
		}
		printResults(os.Args[2], results)
	default:
		fmt.Println(usage)
		os.Exit(2)
	}
}

func printStats(stats knowledge.EngineStats, elapsed time.Duration) {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("记录数: %d\n", stats.Records)
	fmt.Printf("向量维度: %d\n", stats.Dimension)
	fmt.Printf("距离度量: %s\n", stats.Metric)
	fmt.Printf("耗时: %s\n", elapsed.Round(time.Millisecond))
	fmt.Println(strings.Repeat("=", 60))
}

func printResults(query string, results []knowledge.SearchResult) {
	fmt.Printf("查询: %s\n", query)
	for i, r := range results {
		fmt.Println(strings.Repeat("-", 60))
		fmt.Printf("#%d  score=%.4f  distance=%.4f  source=%s\n", i+1, r.Score, r.Distance, r.Record.Source)
		fmt.Printf("问题: %s\n", r.Record.Question)
		fmt.Printf("答案: %s\n", r.Record.Answer)
	}
	if len(results) == 0 {
		fmt.Println("没有结果")
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	os.Exit(1)
}
