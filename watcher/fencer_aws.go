package watcher

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/fenceline/fenceline/types"
)

// EC2API is the subset of the EC2 client the fencer needs (interface for
// testability).
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	RebootInstances(ctx context.Context, params *ec2.RebootInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RebootInstancesOutput, error)
}

// EC2Fencer fences cluster nodes that run as EC2 instances, resolving the
// target by its Name tag. Useful when the HA pair is deployed in AWS and
// power control means instance stop/reboot.
type EC2Fencer struct {
	client EC2API
	region string
}

// NewEC2Fencer creates an EC2-backed fencer using the default credential
// chain.
func NewEC2Fencer(ctx context.Context, region string) (*EC2Fencer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &EC2Fencer{
		client: ec2.NewFromConfig(cfg),
		region: region,
	}, nil
}

// NewEC2FencerWithClient wires an explicit client, used by tests.
func NewEC2FencerWithClient(client EC2API, region string) *EC2Fencer {
	return &EC2Fencer{client: client, region: region}
}

// Perform implements Fencer. Stop is forced: a node being fenced cannot be
// trusted to shut down cleanly.
func (f *EC2Fencer) Perform(ctx context.Context, action, targetNode string, filesystems []string) (Result, error) {
	instanceID, state, err := f.resolveInstance(ctx, targetNode)
	if err != nil {
		return Result{}, err
	}

	switch action {
	case types.ActionOff:
		_, err = f.client.StopInstances(ctx, &ec2.StopInstancesInput{
			InstanceIds: []string{instanceID},
			Force:       aws.Bool(true),
		})
	case types.ActionOn:
		_, err = f.client.StartInstances(ctx, &ec2.StartInstancesInput{
			InstanceIds: []string{instanceID},
		})
	case types.ActionReboot:
		_, err = f.client.RebootInstances(ctx, &ec2.RebootInstancesInput{
			InstanceIds: []string{instanceID},
		})
	case types.ActionStatus:
		return Result{
			Success:         true,
			Message:         fmt.Sprintf("instance %s is %s", instanceID, state),
			ActionPerformed: action,
		}, nil
	default:
		return Result{}, fmt.Errorf("unsupported fence action %q", action)
	}

	if err != nil {
		return Result{
			Success:         false,
			Message:         fmt.Sprintf("ec2 %s failed for %s: %v", action, instanceID, err),
			ActionPerformed: action,
		}, nil
	}

	return Result{
		Success:         true,
		Message:         fmt.Sprintf("ec2 %s issued for %s (%s)", action, targetNode, instanceID),
		ActionPerformed: action,
	}, nil
}

// resolveInstance maps a cluster node name to its EC2 instance by Name tag.
func (f *EC2Fencer) resolveInstance(ctx context.Context, targetNode string) (string, string, error) {
	out, err := f.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:Name"), Values: []string{targetNode}},
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("describe instances for %s: %w", targetNode, err)
	}

	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			if instance.State != nil && instance.State.Name == ec2types.InstanceStateNameTerminated {
				continue
			}
			state := ""
			if instance.State != nil {
				state = string(instance.State.Name)
			}
			return aws.ToString(instance.InstanceId), state, nil
		}
	}

	return "", "", fmt.Errorf("no instance found for node %s", targetNode)
}
