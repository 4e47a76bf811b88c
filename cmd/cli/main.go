// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"batchop-engine/pkg/config"
	"batchop-engine/pkg/utils"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stdout)
		return 0
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "version":
		fmt.Fprintln(stdout, "batchop cli "+version)
		return 0
	case "health":
		return runHealth(stdout, stderr)
	case "config":
		return runConfig(stdout, stderr)
	case "submit":
		return runSubmit(rest, stdout, stderr)
	case "ops":
		return runOps(rest, stdout, stderr)
	case "recover":
		return runRecover(stdout, stderr)
	default:
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: batchop <command> [args]")
	fmt.Fprintln(w, "  version                          - 显示版本")
	fmt.Fprintln(w, "  health                           - 服务健康与网络状态")
	fmt.Fprintln(w, "  config                           - 显示配置概要")
	fmt.Fprintln(w, "  submit [-match m] [-user u] <type> <ref>...")
	fmt.Fprintln(w, "                                   - 提交批量操作（markRead|markDelivered|delete）")
	fmt.Fprintln(w, "  ops list [-status s] [-key k] [-value v] [-limit n]")
	fmt.Fprintln(w, "  ops get <id>                     - 查看操作记录")
	fmt.Fprintln(w, "  ops reset <id>                   - 重置 retriesExhausted 记录")
	fmt.Fprintln(w, "  ops purge <key> <value>          - 按关联键删除记录")
	fmt.Fprintln(w, "  recover                          - 触发一轮恢复")
	fmt.Fprintln(w, "环境变量 BATCHOP_API_URL 指定服务地址，默认 http://localhost:8080")
}

func runHealth(stdout, stderr io.Writer) int {
	out, err := getHealth()
	if err != nil {
		fmt.Fprintf(stderr, "健康检查失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, prettyJSON(out))
	return 0
}

func runConfig(stdout, stderr io.Writer) int {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		fmt.Fprintf(stderr, "加载配置失败: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "api.addr=%s\n", cfg.API.Addr())
	fmt.Fprintf(stdout, "batchop.max_retries=%d\n", cfg.BatchOp.MaxRetriesOrDefault())
	fmt.Fprintf(stdout, "batchop.base_retry_delay=%s\n", cfg.BatchOp.BaseRetryDelayOrDefault())
	fmt.Fprintf(stdout, "batchop.idempotency_window=%s\n", cfg.BatchOp.IdempotencyWindowOrDefault())
	fmt.Fprintf(stdout, "oplog.type=%s\n", utils.Coalesce(cfg.OpLog.Type, "memory"))
	fmt.Fprintf(stdout, "docstore.type=%s\n", utils.Coalesce(cfg.DocStore.Type, "memory"))
	fmt.Fprintf(stdout, "network.type=%s\n", utils.Coalesce(cfg.Network.Type, "manual"))
	return 0
}

func runSubmit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	match := fs.String("match", "", "matchId 关联键")
	user := fs.String("user", "", "userId 关联键")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(stderr, "Usage: batchop submit [-match m] [-user u] <type> <ref>...")
		return 1
	}
	body := submitBody{Type: fs.Arg(0), TargetRefs: fs.Args()[1:]}
	if *match != "" || *user != "" {
		body.CorrelationIDs = map[string]string{}
		if *match != "" {
			body.CorrelationIDs["matchId"] = *match
		}
		if *user != "" {
			body.CorrelationIDs["userId"] = *user
		}
	}
	out, err := submitOperation(body)
	if err != nil {
		fmt.Fprintf(stderr, "提交失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, prettyJSON(out))
	return 0
}

func runOps(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: batchop ops list|get|reset|purge")
		return 1
	}
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("ops list", flag.ContinueOnError)
		fs.SetOutput(stderr)
		status := fs.String("status", "", "逗号分隔的状态")
		key := fs.String("key", "", "关联键")
		value := fs.String("value", "", "关联值")
		limit := fs.Int("limit", 0, "最大条数")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		ops, err := listOperations(*status, *key, *value, *limit)
		if err != nil {
			fmt.Fprintf(stderr, "列出操作失败: %v\n", err)
			return 1
		}
		if len(ops) == 0 {
			fmt.Fprintln(stdout, "[]")
			return 0
		}
		fmt.Fprintln(stdout, prettyJSON(ops))
		return 0
	case "get", "reset":
		if len(args) < 2 {
			fmt.Fprintf(stderr, "Usage: batchop ops %s <id>\n", args[0])
			return 1
		}
		fn := getOperation
		if args[0] == "reset" {
			fn = resetOperation
		}
		out, err := fn(args[1])
		if err != nil {
			fmt.Fprintf(stderr, "ops %s 失败: %v\n", args[0], err)
			return 1
		}
		fmt.Fprintln(stdout, prettyJSON(out))
		return 0
	case "purge":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "Usage: batchop ops purge <key> <value>")
			return 1
		}
		n, err := purgeOperations(args[1], args[2])
		if err != nil {
			fmt.Fprintf(stderr, "清理失败: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "deleted %d\n", n)
		return 0
	default:
		fmt.Fprintf(stderr, "未知子命令: %s\n", strings.TrimSpace(args[0]))
		return 1
	}
}

func runRecover(stdout, stderr io.Writer) int {
	out, err := triggerRecovery()
	if err != nil {
		fmt.Fprintf(stderr, "触发恢复失败: %v\n", err)
		return 1
	}
	if deferred, _ := out["deferred"].(bool); deferred {
		fmt.Fprintln(stdout, "离线，恢复已推迟到网络恢复后执行")
	}
	fmt.Fprintln(stdout, prettyJSON(out))
	return 0
}
