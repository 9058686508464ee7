package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lingzhi-client/audio"
	"lingzhi-client/audio/device"
	"lingzhi-client/config"
	"lingzhi-client/log"
	"lingzhi-client/metrics"
	"lingzhi-client/server"
	"lingzhi-client/session"
	"lingzhi-client/ui"
	"lingzhi-client/websocket"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "lingzhi-client",
		Short:        "与实时语音智能体对话的命令行客户端",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd, configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "配置文件路径")
	root.Flags().Bool("audio", false, "启动时进入语音模式")
	root.Flags().String("host", "", "智能体地址，主机:端口")

	serve := &cobra.Command{
		Use:   "serve-loopback",
		Short: "启动本地回环智能体，把收到的音频和文本原样返回",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoopback(cmd, configPath)
		},
	}
	serve.Flags().String("listen", "", "监听地址")
	root.AddCommand(serve)

	return root
}

// loadConfig 加载配置并初始化日志系统
func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "加载配置文件失败")
	}
	if err := log.Init(&cfg.Log); err != nil {
		return nil, errors.Wrap(err, "初始化日志系统失败")
	}
	if cfg.ConfigPath != "" {
		log.Infof("已加载配置文件: %s", cfg.ConfigPath)
	}
	return cfg, nil
}

func runClient(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// 命令行参数优先
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("audio") {
		cfg.Audio.Enabled, _ = cmd.Flags().GetBool("audio")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deps := session.Deps{Presenter: ui.NewTerminal(cmd.OutOrStdout())}
	sys, err := device.New(device.Config{
		InputSampleRate:       cfg.Audio.InputSampleRate,
		OutputSampleRate:      cfg.Audio.OutputSampleRate,
		InputFramesPerBuffer:  cfg.Audio.InputFramesPerBuffer,
		OutputFramesPerBuffer: cfg.Audio.OutputFramesPerBuffer,
	})
	switch {
	case errors.Is(err, audio.ErrUnavailable):
		log.Infof("未启用音频设备，只能使用文本模式")
	case err != nil:
		log.Warnf("初始化音频设备失败: %v", err)
	default:
		defer func() { _ = sys.Close() }()
		deps.Capturer = sys
		deps.Player = sys
	}

	sess := session.New(session.Config{
		Server: websocket.Config{
			Scheme:           cfg.Server.Scheme,
			Host:             cfg.Server.Host,
			HandshakeTimeout: cfg.Server.HandshakeTimeout,
			WriteTimeout:     cfg.Server.WriteTimeout,
			ReconnectDelay:   cfg.Server.ReconnectDelay,
		},
		FlushInterval: cfg.Audio.FlushInterval,
		AudioEnabled:  cfg.Audio.Enabled,
	}, deps)
	log.Infof("会话ID: %s", sess.ID())

	eg, groupCtx := errgroup.WithContext(ctx)

	eg.Go(func() error { return sess.Run(groupCtx) })

	if cfg.Metrics.Addr != "" {
		exporter := metrics.NewExporter(cfg.Metrics.Addr)
		eg.Go(exporter.Start)
		eg.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()
			return exporter.Shutdown(shutdownCtx)
		})
	}

	// 标准输入的读取无法取消，不放进errgroup
	go func() {
		if err := runREPL(groupCtx, cmd.InOrStdin(), cmd.OutOrStdout(), sess); err != nil {
			log.Errorf("读取输入失败: %v", err)
		}
		cancel()
	}()

	return eg.Wait()
}

func runLoopback(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	addr := cfg.Loopback.Addr
	if cmd.Flags().Changed("listen") {
		addr, _ = cmd.Flags().GetString("listen")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Config{
		Addr:           addr,
		SilenceTimeout: cfg.Loopback.SilenceTimeout,
		FrameBytes:     cfg.Loopback.FrameBytes,
	})

	eg, groupCtx := errgroup.WithContext(ctx)
	eg.Go(srv.ListenAndServe)
	eg.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	fmt.Fprintf(cmd.OutOrStdout(), "回环智能体已启动: ws://%s/ws/{session_id}\n", addr)
	return eg.Wait()
}
