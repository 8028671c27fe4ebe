package keyValStore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// calculateDirectorySize calculates the total size of files within a directory
func calculateDirectorySize(path string) (size int64, err error) {
	err = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return
}

// getDeviceAndMountPoint picks the partition with the longest mount point
// that is a prefix of path.
func getDeviceAndMountPoint(path string) (device, mountPoint string, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", err
	}
	partitions, err := disk.Partitions(true)
	if err != nil {
		return "", "", fmt.Errorf("unable to list partitions: %w", err)
	}
	for _, p := range partitions {
		if strings.HasPrefix(abs, p.Mountpoint) && len(p.Mountpoint) > len(mountPoint) {
			device, mountPoint = p.Device, p.Mountpoint
		}
	}
	if mountPoint == "" {
		return "", "", fmt.Errorf("unable to find mount for path %s", path)
	}
	return device, mountPoint, nil
}

// displayDiskUsage logs the disk usage of path and of the database files
func displayDiskUsage(log *logrus.Logger, path string) error {
	usage, err := disk.Usage(path)
	if err != nil {
		return fmt.Errorf("disk usage of %s: %w", path, err)
	}

	fields := logrus.Fields{
		"Path":       path,
		"Total (GB)": fmt.Sprintf("%.2f", float64(usage.Total)/1e9),
		"Used (GB)":  fmt.Sprintf("%.2f", float64(usage.Used)/1e9),
		"Free (GB)":  fmt.Sprintf("%.2f", float64(usage.Free)/1e9),
	}
	if device, mountPoint, err := getDeviceAndMountPoint(path); err == nil {
		fields["Device"] = device
		fields["Mount Point"] = mountPoint
	}
	if pathSize, err := calculateDirectorySize(path); err == nil {
		fields["Usage by DB"] = fmt.Sprintf("%.2f", float64(pathSize)/1e9)
	}

	log.WithFields(fields).Debug("Disk Usage")
	return nil
}
