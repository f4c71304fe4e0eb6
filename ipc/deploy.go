/*
This file contains the SSH deployment path: the coordinator copies the worker
binary and the run configuration to each remote machine and launches one
worker per host. Password credentials in a config file are acceptable for the
cluster-lab setting this targets.
*/
package ipc

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/slabgrid/heatmesh/configs"
)

// remoteDir is where the worker binary and config land on each host.
const remoteDir = "/tmp/heatmesh"

// StartWorkers deploys binPath and cfgPath to hosts[1:] and starts one
// worker per host with its rank. hosts[0] is the coordinator itself and is
// skipped. Any failure aborts the whole run; there is no partial deployment.
func StartWorkers(hosts []configs.WorkerHost, binPath, cfgPath string) error {
	for rank := 1; rank < len(hosts); rank++ {
		if err := startWorker(hosts[rank], rank, binPath, cfgPath); err != nil {
			return fmt.Errorf("ipc: deploy rank %d to %s: %w", rank, hosts[rank].Address, err)
		}
	}
	return nil
}

func startWorker(host configs.WorkerHost, rank int, binPath, cfgPath string) error {
	sshPort := host.Port
	if sshPort == "" {
		sshPort = "22"
	}
	client, err := ssh.Dial("tcp", host.Address+":"+sshPort, &ssh.ClientConfig{
		User:            host.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(host.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	if err := push(client, binPath, remoteDir+"/worker"); err != nil {
		return err
	}
	if err := push(client, cfgPath, remoteDir+"/config.json"); err != nil {
		return err
	}

	// nohup so the worker survives this session; it connects back into the
	// TCP mesh on its own.
	cmd := fmt.Sprintf(
		"chmod +x %s/worker && nohup %s/worker -rank %d -config %s/config.json >%s/worker.log 2>&1 &",
		remoteDir, remoteDir, rank, remoteDir, remoteDir)
	return run(client, cmd)
}

// push streams a local file to a remote path through a shell session.
func push(client *ssh.Client, local, remote string) error {
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	session, err := client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()
	session.Stdin = f
	return session.Run(fmt.Sprintf("mkdir -p %s && cat > %s", remoteDir, remote))
}

func run(client *ssh.Client, cmd string) error {
	session, err := client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Run(cmd)
}
