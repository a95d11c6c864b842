// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-zookeeper/zk"
)

const lockRoot = "/vertex_locks" // 所有分布式锁的根节点

// LeaderLock 是基于临时顺序节点的非阻塞式领导者锁。
// 多实例部署时只有持锁实例执行预订单的 TTL 清扫，避免重复扫描。
// 与传统阻塞锁不同，TryLock 竞争失败时会立即清理自己的节点并返回 false，
// 调用方在下一个清扫周期再次尝试即可。
type LeaderLock struct {
	conn     *Conn
	path     string // 锁的路径，例如 /vertex_locks/reservation-sweeper
	lockNode string // 成功持锁后，自己创建的节点路径
}

// NewLeaderLock 创建一个锁实例并确保父路径存在。
func NewLeaderLock(conn *Conn, resourceID string) (*LeaderLock, error) {
	for _, p := range []string{lockRoot, lockRoot + "/" + resourceID} {
		if exists, _, err := conn.Exists(p); err == nil && !exists {
			if _, createErr := conn.Create(p, []byte(""), 0, zk.WorldACL(zk.PermAll)); createErr != nil && createErr != zk.ErrNodeExists {
				return nil, fmt.Errorf("failed to create lock path %s: %w", p, createErr)
			}
		}
	}
	return &LeaderLock{
		conn: conn,
		path: lockRoot + "/" + resourceID,
	}, nil
}

// TryLock 尝试获取锁。竞争失败时返回 false 并清理自己的节点。
func (l *LeaderLock) TryLock() (bool, error) {
	if l.lockNode != "" {
		// 已经持有锁
		return true, nil
	}

	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return false, fmt.Errorf("failed to create sequential node: %w", err)
	}

	children, _, err := l.conn.Children(l.path)
	if err != nil {
		_ = l.conn.Delete(nodePath, -1)
		return false, fmt.Errorf("failed to list lock children: %w", err)
	}
	// 保护性节点名形如 _c_<guid>-lock-0000000003，按字典序排会排到
	// 会话 GUID 上，必须按末尾的序号排
	sort.Slice(children, func(i, j int) bool {
		return nodeSequence(children[i]) < nodeSequence(children[j])
	})

	myNodeName := strings.TrimPrefix(nodePath, l.path+"/")
	if len(children) > 0 && myNodeName == children[0] {
		l.lockNode = nodePath
		return true, nil
	}

	// 没抢到：删掉自己的节点，把机会留给当前持有者
	if err := l.conn.Delete(nodePath, -1); err != nil && err != zk.ErrNoNode {
		return false, fmt.Errorf("failed to clean up lock node: %w", err)
	}
	return false, nil
}

// nodeSequence 取顺序节点名最后一个 "-" 之后的序号。
// 解析不了的节点名排到最后，不参与竞争。
func nodeSequence(name string) int {
	idx := strings.LastIndex(name, "-")
	if idx < 0 || idx == len(name)-1 {
		return math.MaxInt
	}
	seq, err := strconv.Atoi(name[idx+1:])
	if err != nil {
		return math.MaxInt
	}
	return seq
}

// Unlock 释放锁。
func (l *LeaderLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}
